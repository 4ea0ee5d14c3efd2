package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "test@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "test@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != defaultFromName {
		t.Errorf("expected default from name %q, got %q", defaultFromName, sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com", Subject: "Test", Body: "Test body"})
	if err == nil {
		t.Error("expected error when client is nil")
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_BuildsMessage(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "care@practice.test", FromName: "Practice"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "jane@x.com", Subject: "Hello", Body: "plain"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got := aws.ToString(client.input.FromEmailAddress); got != `"Practice" <care@practice.test>` {
		t.Fatalf("unexpected from %q", got)
	}
	if got := client.input.Destination.ToAddresses; len(got) != 1 || got[0] != "jane@x.com" {
		t.Fatalf("unexpected destination %v", got)
	}
	if client.input.Content.Simple.Body.Html != nil {
		t.Fatal("html body should be omitted when empty")
	}
	if aws.ToString(client.input.Content.Simple.Body.Text.Data) != "plain" {
		t.Fatal("text body not set")
	}
}

func TestSESSender_ReplyToAndConfigurationSet(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{
		FromEmail:        "care@practice.test",
		ReplyTo:          "frontdesk@practice.test",
		ConfigurationSet: "engagement",
	}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "jane@x.com", ToName: "Jane Doe", Subject: "Hi", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got := client.input.ReplyToAddresses; len(got) != 1 || got[0] != "frontdesk@practice.test" {
		t.Fatalf("unexpected reply-to %v", got)
	}
	if got := aws.ToString(client.input.ConfigurationSetName); got != "engagement" {
		t.Fatalf("unexpected configuration set %q", got)
	}
	if got := client.input.Destination.ToAddresses[0]; got != `"Jane Doe" <jane@x.com>` {
		t.Fatalf("unexpected destination %q", got)
	}
	if client.input.Content.Simple.Body.Text != nil {
		t.Fatal("text body should be omitted when empty")
	}
}

func TestSESSender_PropagatesError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "jane@x.com"})
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("expected SES error, got %v", err)
	}
}

func TestNewSESSender_NilClient(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender without client")
	}
}

func TestStubEmailSender_RecordsMessages(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "a@x.com", Subject: "s"}); err != nil {
		t.Fatalf("stub sender should not return error, got: %v", err)
	}
	if sent := sender.Sent(); len(sent) != 1 || sent[0].To != "a@x.com" {
		t.Fatalf("unexpected recorded messages %v", sent)
	}
}
