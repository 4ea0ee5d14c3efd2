package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/mundos-engagement/internal/observability/metrics"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// ErrNoAddress is returned when a patient has no email on file.
var ErrNoAddress = errors.New("notify: patient has no email address")

// Recipient identifies the patient receiving an outbound message.
type Recipient struct {
	Name  string
	Email string
}

// PatientMessenger delivers admin-written campaign replies to patients.
type PatientMessenger struct {
	email        EmailSender
	practiceName string
	logger       *logging.Logger
	metrics      *metrics.WorkflowMetrics
}

// NewPatientMessenger wraps an EmailSender. A nil sender disables delivery.
func NewPatientMessenger(email EmailSender, practiceName string, logger *logging.Logger, m *metrics.WorkflowMetrics) *PatientMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(practiceName) == "" {
		practiceName = "your care team"
	}
	return &PatientMessenger{email: email, practiceName: practiceName, logger: logger, metrics: m}
}

// SendCampaignMessage emails body to the recipient.
func (p *PatientMessenger) SendCampaignMessage(ctx context.Context, to Recipient, body string) error {
	if p == nil || p.email == nil {
		return nil
	}
	if strings.TrimSpace(to.Email) == "" {
		p.metrics.ObserveNotification("email", "skipped")
		return ErrNoAddress
	}

	greeting := "Hello"
	if name := strings.TrimSpace(to.Name); name != "" {
		greeting = "Hi " + strings.Fields(name)[0]
	}
	msg := EmailMessage{
		To:      to.Email,
		ToName:  to.Name,
		Subject: fmt.Sprintf("A message from %s", p.practiceName),
		Body:    fmt.Sprintf("%s,\n\n%s\n\n%s", greeting, body, p.practiceName),
	}
	if err := p.email.Send(ctx, msg); err != nil {
		p.metrics.ObserveNotification("email", "failed")
		return err
	}
	p.metrics.ObserveNotification("email", "sent")
	return nil
}
