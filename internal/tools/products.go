package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"GiftChat/internal/catalog"
)

// listProductsTool returns the catalog as a model-facing product list.
func listProductsTool(cat *catalog.Catalog) Definition {
	return Definition{
		Name:        "list_products",
		Description: "Get list of available products for sale",
		Parameters: &jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{},
			Required:   []string{},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			type listing struct {
				ID          string `json:"id"`
				Name        string `json:"name"`
				Price       string `json:"price"`
				Description string `json:"description"`
			}

			listings := make([]listing, 0, cat.Len())
			for _, id := range cat.IDs() {
				product, _ := cat.Get(id)
				listings = append(listings, listing{
					ID:          id,
					Name:        product.Name,
					Price:       catalog.FormatPrice(product.Price),
					Description: product.Description,
				})
			}

			out, err := json.Marshal(listings)
			if err != nil {
				return "", fmt.Errorf("failed to marshal product list: %w", err)
			}
			return string(out), nil
		},
	}
}
