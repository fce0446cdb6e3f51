package fulfillment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"GiftChat/internal/catalog"
	"GiftChat/internal/telemetry"
)

type fakeNotifier struct {
	calls    int
	lastTo   string
	lastBody string
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, phone, message string) error {
	f.calls++
	f.lastTo = phone
	f.lastBody = message
	return f.err
}

func newTestService(t *testing.T, notifier Notifier) *Service {
	t.Helper()
	db, err := telemetry.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, catalog.Default(), notifier, logger)
}

func completedSession() *stripe.CheckoutSession {
	return &stripe.CheckoutSession{
		ID:          "cs_test_abc123",
		AmountTotal: 2500,
		Currency:    stripe.CurrencyUSD,
		Metadata:    map[string]string{"product_id": "gift_card_25"},
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{
			Email: "buyer@example.com",
			Phone: "+15550001234",
		},
	}
}

func TestFulfillCheckoutCreatesOrder(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(t, notifier)

	order, err := svc.FulfillCheckout(context.Background(), completedSession())
	if err != nil {
		t.Fatalf("FulfillCheckout failed: %v", err)
	}

	if !strings.HasPrefix(order.ID, "ord_") {
		t.Errorf("order id = %q", order.ID)
	}
	if order.ProductName != "$25 Gift Card" {
		t.Errorf("product name = %q", order.ProductName)
	}
	if order.Amount != 2500 || order.Currency != "usd" {
		t.Errorf("amount = %d %s", order.Amount, order.Currency)
	}
	if order.CustomerEmail != "buyer@example.com" {
		t.Errorf("customer email = %q", order.CustomerEmail)
	}
	if !strings.HasPrefix(order.GiftCode, "GC-") {
		t.Errorf("gift code = %q", order.GiftCode)
	}

	if notifier.calls != 1 {
		t.Fatalf("notifier called %d times", notifier.calls)
	}
	if notifier.lastTo != "+15550001234" {
		t.Errorf("SMS sent to %q", notifier.lastTo)
	}
	if !strings.Contains(notifier.lastBody, order.GiftCode) {
		t.Errorf("SMS %q does not contain gift code %q", notifier.lastBody, order.GiftCode)
	}

	stored, err := svc.OrderByCheckoutSession(context.Background(), "cs_test_abc123")
	if err != nil {
		t.Fatalf("OrderByCheckoutSession failed: %v", err)
	}
	if stored.ID != order.ID || stored.GiftCode != order.GiftCode {
		t.Errorf("stored order %+v does not match %+v", stored, order)
	}
}

func TestFulfillCheckoutIsIdempotent(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(t, notifier)

	if _, err := svc.FulfillCheckout(context.Background(), completedSession()); err != nil {
		t.Fatalf("first fulfillment failed: %v", err)
	}
	_, err := svc.FulfillCheckout(context.Background(), completedSession())
	if !errors.Is(err, ErrAlreadyFulfilled) {
		t.Fatalf("second fulfillment error = %v, want ErrAlreadyFulfilled", err)
	}

	if notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.calls)
	}
}

func TestFulfillCheckoutWithoutPhoneSkipsNotify(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := newTestService(t, notifier)

	sess := completedSession()
	sess.CustomerDetails = nil

	order, err := svc.FulfillCheckout(context.Background(), sess)
	if err != nil {
		t.Fatalf("FulfillCheckout failed: %v", err)
	}
	if order.GiftCode == "" {
		t.Error("order has no gift code")
	}
	if notifier.calls != 0 {
		t.Errorf("notifier called %d times without a phone number", notifier.calls)
	}
}

func TestFulfillCheckoutSurvivesNotifierFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("twilio down")}
	svc := newTestService(t, notifier)

	order, err := svc.FulfillCheckout(context.Background(), completedSession())
	if err != nil {
		t.Fatalf("FulfillCheckout failed: %v", err)
	}

	stored, err := svc.OrderByCheckoutSession(context.Background(), order.CheckoutSessionID)
	if err != nil {
		t.Fatalf("order not recorded after notifier failure: %v", err)
	}
	if stored.ID != order.ID {
		t.Errorf("stored order id = %q, want %q", stored.ID, order.ID)
	}
}

func TestNewGiftCode(t *testing.T) {
	pattern := regexp.MustCompile(`^GC-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		code := NewGiftCode()
		if !pattern.MatchString(code) {
			t.Fatalf("gift code %q does not match expected format", code)
		}
		if seen[code] {
			t.Fatalf("duplicate gift code %q", code)
		}
		seen[code] = true
	}
}

func TestUnconfiguredTwilioNotifier(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := NewTwilioNotifier("", "", "", logger)

	if notifier.Configured() {
		t.Error("notifier without credentials reports configured")
	}
	if err := notifier.Notify(context.Background(), "+15550001234", "hello"); err != nil {
		t.Errorf("unconfigured Notify returned error: %v", err)
	}
}
