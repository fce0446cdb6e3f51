package fulfillment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioNotifier sends SMS confirmations through the Twilio REST API.
type TwilioNotifier struct {
	client     *twilio.RestClient
	from       string
	configured bool
	logger     *slog.Logger
}

// NewTwilioNotifier creates a notifier from Twilio credentials. When any
// credential is missing the notifier is disabled and Notify becomes a no-op.
func NewTwilioNotifier(accountSID, authToken, from string, logger *slog.Logger) *TwilioNotifier {
	if accountSID == "" || authToken == "" || from == "" {
		logger.Warn("Twilio not configured, purchase confirmation SMS disabled")
		return &TwilioNotifier{logger: logger}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioNotifier{
		client:     client,
		from:       from,
		configured: true,
		logger:     logger,
	}
}

// Configured reports whether SMS sending is enabled.
func (t *TwilioNotifier) Configured() bool {
	return t.configured
}

// Notify sends an SMS to the given phone number.
func (t *TwilioNotifier) Notify(ctx context.Context, phone, message string) error {
	if !t.configured {
		t.logger.Info("skipping confirmation SMS, Twilio not configured", "to", phone)
		return nil
	}

	params := &openapi.CreateMessageParams{
		To:   &phone,
		From: &t.from,
		Body: &message,
	}
	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	t.logger.Info("sent purchase confirmation SMS", "to", phone)
	return nil
}
