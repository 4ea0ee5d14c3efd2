package notify

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

const sesCharset = "UTF-8"

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers practice email through SES v2.
type SESSender struct {
	client           sesAPI
	from             string
	replyTo          []string
	configurationSet *string
	logger           *logging.Logger
}

// SESConfig configures an SESSender. ReplyTo routes patient replies to the
// front desk inbox; ConfigurationSet attaches SES event publishing.
type SESConfig struct {
	FromEmail        string
	FromName         string
	ReplyTo          string
	ConfigurationSet string
}

// NewSESSender returns nil when client is nil.
func NewSESSender(client sesAPI, cfg SESConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	s := &SESSender{
		client: client,
		from:   (&mail.Address{Name: cfg.FromName, Address: cfg.FromEmail}).String(),
		logger: logger,
	}
	if cfg.ReplyTo != "" {
		s.replyTo = []string{cfg.ReplyTo}
	}
	if cfg.ConfigurationSet != "" {
		s.configurationSet = aws.String(cfg.ConfigurationSet)
	}
	return s
}

// Send delivers msg as a simple SES message. Empty text or HTML parts are
// left out.
func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	to := msg.To
	if msg.ToName != "" {
		to = (&mail.Address{Name: msg.ToName, Address: msg.To}).String()
	}
	body := &types.Body{Text: sesContent(msg.Body), Html: sesContent(msg.HTML)}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress:     aws.String(s.from),
		Destination:          &types.Destination{ToAddresses: []string{to}},
		ReplyToAddresses:     s.replyTo,
		ConfigurationSetName: s.configurationSet,
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(sesCharset)},
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: ses send to %s: %w", msg.To, err)
	}
	s.logger.Info("patient email sent", "provider", "ses", "message_id", aws.ToString(out.MessageId))
	return nil
}

func sesContent(data string) *types.Content {
	if data == "" {
		return nil
	}
	return &types.Content{Data: aws.String(data), Charset: aws.String(sesCharset)}
}

var _ EmailSender = (*SESSender)(nil)
