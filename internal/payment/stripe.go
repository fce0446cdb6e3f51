package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/trace"

	"GiftChat/internal/catalog"
)

// Stripe's universal test card. Always succeeds in test mode.
const (
	testCardNumber   = "4242424242424242"
	testCardExpMonth = 12
	testCardExpYear  = 2034
	testCardCVC      = "123"
)

// Config holds the payment provider settings.
type Config struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Client wraps the Stripe API for checkout sessions, test payments and
// webhook verification.
type Client struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	logger        *slog.Logger
	tracer        trace.Tracer
}

// CheckoutSession is the part of a provider checkout session the
// assistant surfaces to users.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentOutcome describes the result of a confirmed test payment.
// Amount is in minor currency units.
type PaymentOutcome struct {
	PaymentID string
	Amount    int64
	Currency  string
	Status    string
}

// Succeeded reports whether the payment reached the succeeded status.
func (o *PaymentOutcome) Succeeded() bool {
	return o.Status == string(stripe.PaymentIntentStatusSucceeded)
}

// NewClient creates a Stripe-backed payment client. httpClient may be
// nil to use the SDK default transport.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger, tracer trace.Tracer) *Client {
	api := &client.API{}
	if httpClient != nil {
		api.Init(cfg.APIKey, stripe.NewBackends(httpClient))
	} else {
		api.Init(cfg.APIKey, nil)
	}

	return &Client{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		logger:        logger,
		tracer:        tracer,
	}
}

// CreateCheckoutSession creates a hosted checkout session for a single
// unit of the product.
func (c *Client) CreateCheckoutSession(ctx context.Context, productID string, product catalog.Product) (*CheckoutSession, error) {
	ctx, span := c.tracer.Start(ctx, "stripe_checkout_session_create")
	defer span.End()

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(product.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(product.Name),
						Description: stripe.String(product.Description),
					},
					UnitAmount: stripe.Int64(product.Price),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
	}
	params.AddMetadata("product_id", productID)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	c.logger.Info("created checkout session",
		"checkout_session_id", sess.ID,
		"product_id", productID,
	)

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ProcessTestPayment charges the test card for the product: it creates
// a payment method from the test card and confirms a payment intent in
// one step. The outcome carries the provider status even when the
// payment did not succeed.
func (c *Client) ProcessTestPayment(ctx context.Context, productID string, product catalog.Product) (*PaymentOutcome, error) {
	ctx, span := c.tracer.Start(ctx, "stripe_test_payment")
	defer span.End()

	pm, err := c.api.PaymentMethods.New(&stripe.PaymentMethodParams{
		Params: stripe.Params{Context: ctx},
		Type:   stripe.String("card"),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(testCardNumber),
			ExpMonth: stripe.Int64(testCardExpMonth),
			ExpYear:  stripe.Int64(testCardExpYear),
			CVC:      stripe.String(testCardCVC),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment method: %w", err)
	}

	piParams := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(product.Price),
		Currency:      stripe.String(product.Currency),
		PaymentMethod: stripe.String(pm.ID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	piParams.AddMetadata("product_id", productID)
	piParams.AddMetadata("product_name", product.Name)

	intent, err := c.api.PaymentIntents.New(piParams)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment intent: %w", err)
	}

	c.logger.Info("processed test payment",
		"payment_id", intent.ID,
		"status", intent.Status,
		"product_id", productID,
	)

	return &PaymentOutcome{
		PaymentID: intent.ID,
		Amount:    intent.Amount,
		Currency:  string(intent.Currency),
		Status:    string(intent.Status),
	}, nil
}

// VerifyWebhook checks the event signature against the signing secret
// and returns the parsed event. Events signed with another secret, with
// a stale timestamp or with a tampered body are rejected.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("failed to verify webhook: %w", err)
	}
	return event, nil
}

// Describe maps a provider error to the message surfaced in tool
// results. Credential problems and card declines get specific text.
func Describe(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
			return "Authentication failed. Please check your Stripe API key."
		case stripeErr.Type == stripe.ErrorTypeCard:
			return fmt.Sprintf("Card error: %s", stripeErr.Msg)
		default:
			return fmt.Sprintf("Stripe error: %s", stripeErr.Msg)
		}
	}
	return err.Error()
}
