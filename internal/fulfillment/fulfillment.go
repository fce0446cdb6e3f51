package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"GiftChat/internal/catalog"
)

// ErrAlreadyFulfilled is returned when a checkout session has already been
// turned into an order.
var ErrAlreadyFulfilled = errors.New("checkout session already fulfilled")

// Order is a fulfilled purchase with its issued gift code.
type Order struct {
	ID                string
	CheckoutSessionID string
	ProductID         string
	ProductName       string
	Amount            int64
	Currency          string
	CustomerEmail     string
	CustomerPhone     string
	GiftCode          string
	CreatedAt         time.Time
}

// Notifier delivers purchase confirmations to customers.
type Notifier interface {
	Notify(ctx context.Context, phone, message string) error
}

// Service turns completed checkout sessions into stored orders.
type Service struct {
	db       *sql.DB
	catalog  *catalog.Catalog
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates a fulfillment service backed by the given database.
func NewService(db *sql.DB, cat *catalog.Catalog, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		catalog:  cat,
		notifier: notifier,
		logger:   logger,
	}
}

// FulfillCheckout records an order for a completed checkout session, issues a
// gift code, and sends the customer a confirmation when a phone number is
// available. Fulfilling the same checkout session twice returns
// ErrAlreadyFulfilled without creating a second order.
func (s *Service) FulfillCheckout(ctx context.Context, sess *stripe.CheckoutSession) (*Order, error) {
	productID := sess.Metadata["product_id"]
	productName := productID
	if product, ok := s.catalog.Get(productID); ok {
		productName = product.Name
	}

	order := &Order{
		ID:                "ord_" + uuid.NewString(),
		CheckoutSessionID: sess.ID,
		ProductID:         productID,
		ProductName:       productName,
		Amount:            sess.AmountTotal,
		Currency:          string(sess.Currency),
		GiftCode:          NewGiftCode(),
		CreatedAt:         time.Now().UTC(),
	}
	if sess.CustomerDetails != nil {
		order.CustomerEmail = sess.CustomerDetails.Email
		order.CustomerPhone = sess.CustomerDetails.Phone
	}

	if err := s.saveOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order fulfilled",
		"order_id", order.ID,
		"checkout_session_id", order.CheckoutSessionID,
		"product_id", order.ProductID,
		"amount", order.Amount,
	)

	// Confirmation delivery is best effort. A failed SMS must not undo a
	// recorded order.
	if s.notifier != nil && order.CustomerPhone != "" {
		msg := fmt.Sprintf("Thanks for your purchase of %s! Your gift code is %s.",
			order.ProductName, order.GiftCode)
		if err := s.notifier.Notify(ctx, order.CustomerPhone, msg); err != nil {
			s.logger.Warn("failed to send purchase confirmation",
				"order_id", order.ID, "error", err)
		}
	}

	return order, nil
}

// OrderByCheckoutSession loads the order recorded for a checkout session.
func (s *Service) OrderByCheckoutSession(ctx context.Context, checkoutSessionID string) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, checkout_session_id, product_id, product_name, amount, currency,
		        customer_email, customer_phone, gift_code, created_at
		 FROM orders WHERE checkout_session_id = ?`, checkoutSessionID)

	var order Order
	err := row.Scan(&order.ID, &order.CheckoutSessionID, &order.ProductID,
		&order.ProductName, &order.Amount, &order.Currency,
		&order.CustomerEmail, &order.CustomerPhone, &order.GiftCode, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

func (s *Service) saveOrder(ctx context.Context, order *Order) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO orders
		 (id, checkout_session_id, product_id, product_name, amount, currency,
		  customer_email, customer_phone, gift_code, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.CheckoutSessionID, order.ProductID, order.ProductName,
		order.Amount, order.Currency, order.CustomerEmail, order.CustomerPhone,
		order.GiftCode, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyFulfilled
	}
	return nil
}

// NewGiftCode generates a gift code in the form GC-XXXX-XXXX-XXXX.
func NewGiftCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("GC-%s-%s-%s", raw[0:4], raw[4:8], raw[8:12])
}
