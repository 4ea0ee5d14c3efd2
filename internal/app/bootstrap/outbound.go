package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/mundos-engagement/internal/appointments"
	"github.com/wolfman30/mundos-engagement/internal/archive"
	appconfig "github.com/wolfman30/mundos-engagement/internal/config"
	"github.com/wolfman30/mundos-engagement/internal/events"
	"github.com/wolfman30/mundos-engagement/internal/notify"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// BuildPublisher returns the domain event publisher for EVENTS_BACKEND and a
// func that releases it.
func BuildPublisher(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (events.Publisher, func(), error) {
	switch cfg.EventsBackend {
	case appconfig.EventsSQS:
		logger.Info("event publisher ready", "backend", "sqs")
		return events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL), func() {}, nil
	case appconfig.EventsAMQP:
		pub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: dial amqp: %w", err)
		}
		logger.Info("event publisher ready", "backend", "amqp", "queue", cfg.AMQPQueue)
		return pub, func() { _ = pub.Close() }, nil
	case appconfig.EventsLog, "":
		return events.NewLogPublisher(logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown events backend %q", cfg.EventsBackend)
	}
}

// BuildEmailSender returns the sender for EMAIL_PROVIDER. SendGrid without an
// API key degrades to the stub so replies are still recorded.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid not configured; falling back to stub email sender")
	case "ses":
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.EmailFrom,
			FromName:         cfg.EmailFromName,
			ReplyTo:          cfg.EmailReplyTo,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildArchive returns the S3 export archive, or nil when no bucket is set.
func BuildArchive(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) appointments.Archiver {
	if cfg.ReportArchiveBucket == "" {
		return nil
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// LocalStack only serves path-style bucket addressing.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return archive.NewStore(client, cfg.ReportArchiveBucket, logger)
}
