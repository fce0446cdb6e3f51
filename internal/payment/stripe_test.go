package payment

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel"

	"GiftChat/internal/catalog"
)

type stripeCall struct {
	method string
	path   string
	auth   string
	body   url.Values
}

type fakeStripeTransport struct {
	statuses  []int
	responses [][]byte
	calls     []stripeCall
}

func (f *fakeStripeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body url.Values
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body, _ = url.ParseQuery(string(raw))
	}
	f.calls = append(f.calls, stripeCall{
		method: req.Method,
		path:   req.URL.Path,
		auth:   req.Header.Get("Authorization"),
		body:   body,
	})

	i := len(f.calls) - 1
	status := http.StatusOK
	if i < len(f.statuses) {
		status = f.statuses[i]
	}
	var resp []byte
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(resp)),
	}, nil
}

func newTestClient(rt http.RoundTripper) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{
		APIKey:        "sk_test_abc123",
		WebhookSecret: "whsec_testsecret",
		SuccessURL:    "https://example.com/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     "https://example.com/cancel",
	}
	return NewClient(cfg, &http.Client{Transport: rt}, logger, otel.Tracer("test"))
}

var giftCard25 = catalog.Product{
	Name:        "$25 Gift Card",
	Price:       2500,
	Currency:    "usd",
	Description: "Perfect starter gift",
}

func TestCreateCheckoutSession(t *testing.T) {
	rt := &fakeStripeTransport{
		responses: [][]byte{[]byte(`{"id": "cs_test_123", "object": "checkout.session", "url": "https://checkout.stripe.com/c/pay/cs_test_123"}`)},
	}
	c := newTestClient(rt)

	sess, err := c.CreateCheckoutSession(context.Background(), "gift_card_25", giftCard25)
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}
	if sess.ID != "cs_test_123" {
		t.Errorf("session id = %q", sess.ID)
	}
	if sess.URL != "https://checkout.stripe.com/c/pay/cs_test_123" {
		t.Errorf("session url = %q", sess.URL)
	}

	if len(rt.calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(rt.calls))
	}
	call := rt.calls[0]
	if call.path != "/v1/checkout/sessions" {
		t.Errorf("path = %q", call.path)
	}
	if call.auth != "Bearer sk_test_abc123" {
		t.Errorf("authorization = %q", call.auth)
	}

	want := map[string]string{
		"payment_method_types[0]":                      "card",
		"mode":                                         "payment",
		"success_url":                                  "https://example.com/success?session_id={CHECKOUT_SESSION_ID}",
		"cancel_url":                                   "https://example.com/cancel",
		"line_items[0][price_data][currency]":          "usd",
		"line_items[0][price_data][unit_amount]":       "2500",
		"line_items[0][price_data][product_data][name]": "$25 Gift Card",
		"line_items[0][quantity]":                      "1",
		"metadata[product_id]":                         "gift_card_25",
	}
	for key, value := range want {
		if got := call.body.Get(key); got != value {
			t.Errorf("form field %s = %q, want %q", key, got, value)
		}
	}
}

func TestProcessTestPaymentSucceeded(t *testing.T) {
	rt := &fakeStripeTransport{
		responses: [][]byte{
			[]byte(`{"id": "pm_test_1", "object": "payment_method"}`),
			[]byte(`{"id": "pi_test_1", "object": "payment_intent", "status": "succeeded", "amount": 2500, "currency": "usd"}`),
		},
	}
	c := newTestClient(rt)

	outcome, err := c.ProcessTestPayment(context.Background(), "gift_card_25", giftCard25)
	if err != nil {
		t.Fatalf("ProcessTestPayment failed: %v", err)
	}

	if !outcome.Succeeded() {
		t.Error("outcome not marked succeeded")
	}
	if outcome.PaymentID != "pi_test_1" || outcome.Amount != 2500 || outcome.Currency != "usd" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	if len(rt.calls) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(rt.calls))
	}

	pmCall := rt.calls[0]
	if pmCall.path != "/v1/payment_methods" {
		t.Errorf("first call path = %q", pmCall.path)
	}
	if pmCall.body.Get("card[number]") != "4242424242424242" {
		t.Errorf("card number = %q", pmCall.body.Get("card[number]"))
	}
	if pmCall.body.Get("type") != "card" {
		t.Errorf("payment method type = %q", pmCall.body.Get("type"))
	}

	piCall := rt.calls[1]
	if piCall.path != "/v1/payment_intents" {
		t.Errorf("second call path = %q", piCall.path)
	}
	wantIntent := map[string]string{
		"amount":                                    "2500",
		"currency":                                  "usd",
		"payment_method":                            "pm_test_1",
		"confirm":                                   "true",
		"automatic_payment_methods[enabled]":        "true",
		"automatic_payment_methods[allow_redirects]": "never",
		"metadata[product_id]":                      "gift_card_25",
		"metadata[product_name]":                    "$25 Gift Card",
	}
	for key, value := range wantIntent {
		if got := piCall.body.Get(key); got != value {
			t.Errorf("form field %s = %q, want %q", key, got, value)
		}
	}
}

func TestProcessTestPaymentNotSucceeded(t *testing.T) {
	rt := &fakeStripeTransport{
		responses: [][]byte{
			[]byte(`{"id": "pm_test_1", "object": "payment_method"}`),
			[]byte(`{"id": "pi_test_2", "object": "payment_intent", "status": "requires_action", "amount": 2500, "currency": "usd"}`),
		},
	}
	c := newTestClient(rt)

	outcome, err := c.ProcessTestPayment(context.Background(), "gift_card_25", giftCard25)
	if err != nil {
		t.Fatalf("ProcessTestPayment failed: %v", err)
	}
	if outcome.Succeeded() {
		t.Error("requires_action outcome marked succeeded")
	}
	if outcome.Status != "requires_action" {
		t.Errorf("status = %q", outcome.Status)
	}
}

func TestDescribe(t *testing.T) {
	authBody := []byte(`{"error": {"type": "invalid_request_error", "message": "Invalid API Key provided"}}`)
	rt := &fakeStripeTransport{statuses: []int{http.StatusUnauthorized}, responses: [][]byte{authBody}}
	c := newTestClient(rt)

	_, err := c.CreateCheckoutSession(context.Background(), "gift_card_25", giftCard25)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if got := Describe(err); got != "Authentication failed. Please check your Stripe API key." {
		t.Errorf("auth describe = %q", got)
	}

	cardBody := []byte(`{"error": {"type": "card_error", "code": "card_declined", "message": "Your card was declined."}}`)
	rt = &fakeStripeTransport{statuses: []int{http.StatusOK, http.StatusPaymentRequired}, responses: [][]byte{
		[]byte(`{"id": "pm_test_1", "object": "payment_method"}`),
		cardBody,
	}}
	c = newTestClient(rt)

	_, err = c.ProcessTestPayment(context.Background(), "gift_card_25", giftCard25)
	if err == nil {
		t.Fatal("expected error for card decline")
	}
	if got := Describe(err); got != "Card error: Your card was declined." {
		t.Errorf("card describe = %q", got)
	}

	if got := Describe(errors.New("network down")); got != "network down" {
		t.Errorf("plain describe = %q", got)
	}
}

func webhookHeader(t *testing.T, ts time.Time, payload []byte, secret string) string {
	t.Helper()
	sig := webhook.ComputeSignature(ts, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig))
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient(&fakeStripeTransport{})
	payload := []byte(`{"id": "evt_test_1", "object": "event", "type": "checkout.session.completed", "data": {"object": {"id": "cs_test_123", "object": "checkout.session"}}}`)

	event, err := c.VerifyWebhook(payload, webhookHeader(t, time.Now(), payload, "whsec_testsecret"))
	if err != nil {
		t.Fatalf("VerifyWebhook failed: %v", err)
	}
	if string(event.Type) != "checkout.session.completed" {
		t.Errorf("event type = %q", event.Type)
	}
	if event.ID != "evt_test_1" {
		t.Errorf("event id = %q", event.ID)
	}
}

func TestVerifyWebhookRejectsBadSignatures(t *testing.T) {
	c := newTestClient(&fakeStripeTransport{})
	payload := []byte(`{"id": "evt_test_1", "object": "event", "type": "checkout.session.completed", "data": {"object": {}}}`)

	// Signed with the wrong secret.
	if _, err := c.VerifyWebhook(payload, webhookHeader(t, time.Now(), payload, "whsec_wrong")); err == nil {
		t.Error("expected error for wrong secret")
	}

	// Body tampered after signing.
	header := webhookHeader(t, time.Now(), payload, "whsec_testsecret")
	tampered := bytes.Replace(payload, []byte("evt_test_1"), []byte("evt_evil_1"), 1)
	if _, err := c.VerifyWebhook(tampered, header); err == nil {
		t.Error("expected error for tampered payload")
	}

	// Stale timestamp outside the tolerance window.
	old := time.Now().Add(-24 * time.Hour)
	if _, err := c.VerifyWebhook(payload, webhookHeader(t, old, payload, "whsec_testsecret")); err == nil {
		t.Error("expected error for stale timestamp")
	}

	// Missing header entirely.
	if _, err := c.VerifyWebhook(payload, ""); err == nil {
		t.Error("expected error for missing header")
	}
}
