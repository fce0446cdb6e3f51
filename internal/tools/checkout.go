package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"GiftChat/internal/catalog"
	"GiftChat/internal/payment"
)

// checkoutTool creates a hosted payment page for one product. The
// product is validated against the catalog before any provider call.
func checkoutTool(cat *catalog.Catalog, payments PaymentProvider) Definition {
	return Definition{
		Name:        "create_checkout_session",
		Description: "Create a Stripe checkout session for a product (redirects to Stripe)",
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

			sess, err := payments.CreateCheckoutSession(ctx, in.ProductID, product)
			if err != nil {
				return errorPayload(payment.Describe(err)), nil
			}

			out, err := json.Marshal(map[string]any{
				"success":      true,
				"checkout_url": sess.URL,
				"session_id":   sess.ID,
			})
			if err != nil {
				return "", fmt.Errorf("failed to marshal checkout result: %w", err)
			}
			return string(out), nil
		},
	}
}
