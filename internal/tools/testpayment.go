package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"GiftChat/internal/catalog"
	"GiftChat/internal/payment"
)

// testPaymentTool charges the test card immediately, with no redirect.
// Success is reported only when the provider confirms the payment
// reached the succeeded status.
func testPaymentTool(cat *catalog.Catalog, payments PaymentProvider) Definition {
	return Definition{
		Name:        "process_test_payment",
		Description: "Process payment immediately server-side using test card credentials (no redirect needed)",
		Parameters:  productIDParameters(),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var in productArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("failed to decode arguments: %w", err)
			}

			product, ok := cat.Get(in.ProductID)
			if !ok {
				return errorPayload("Product not found"), nil
			}

			outcome, err := payments.ProcessTestPayment(ctx, in.ProductID, product)
			if err != nil {
				return errorPayload(payment.Describe(err)), nil
			}

			if !outcome.Succeeded() {
				out, err := json.Marshal(map[string]any{
					"success": false,
					"status":  outcome.Status,
					"message": "Payment requires additional action",
				})
				if err != nil {
					return "", fmt.Errorf("failed to marshal payment result: %w", err)
				}
				return string(out), nil
			}

			out, err := json.Marshal(map[string]any{
				"success":    true,
				"payment_id": outcome.PaymentID,
				"amount":     float64(outcome.Amount) / 100,
				"currency":   strings.ToUpper(outcome.Currency),
				"status":     outcome.Status,
				"message":    fmt.Sprintf("Payment successful! You purchased %s", product.Name),
			})
			if err != nil {
				return "", fmt.Errorf("failed to marshal payment result: %w", err)
			}
			return string(out), nil
		},
	}
}
