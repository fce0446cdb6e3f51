package catalog

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// Product is a single purchasable item. Price is in minor currency
// units (cents).
type Product struct {
	Name        string `toml:"name" json:"name"`
	Price       int64  `toml:"price" json:"price"`
	Currency    string `toml:"currency" json:"currency"`
	Description string `toml:"description" json:"description"`
}

// Catalog is the set of products offered for sale. It is immutable
// after startup.
type Catalog struct {
	products map[string]Product
	ids      []string
}

var builtin = map[string]Product{
	"gift_card_25": {
		Name:        "$25 Gift Card",
		Price:       2500,
		Currency:    "usd",
		Description: "Perfect starter gift",
	},
	"gift_card_50": {
		Name:        "$50 Gift Card",
		Price:       5000,
		Currency:    "usd",
		Description: "Most popular choice",
	},
	"gift_card_100": {
		Name:        "$100 Gift Card",
		Price:       10000,
		Currency:    "usd",
		Description: "Premium gift option",
	},
}

// New builds a catalog from the given products.
func New(products map[string]Product) (*Catalog, error) {
	if len(products) == 0 {
		return nil, fmt.Errorf("catalog has no products")
	}

	ids := make([]string, 0, len(products))
	for id, product := range products {
		if id == "" {
			return nil, fmt.Errorf("catalog contains a product with an empty id")
		}
		if product.Name == "" {
			return nil, fmt.Errorf("product %s has no name", id)
		}
		if product.Price <= 0 {
			return nil, fmt.Errorf("product %s has a non-positive price", id)
		}
		if product.Currency == "" {
			return nil, fmt.Errorf("product %s has no currency", id)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return &Catalog{products: products, ids: ids}, nil
}

// Default returns the built-in gift card catalog.
func Default() *Catalog {
	c, err := New(builtin)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from a TOML file. The file fully replaces the
// built-in products.
func Load(path string) (*Catalog, error) {
	var file struct {
		Products map[string]Product `toml:"products"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no products", path)
	}
	return New(file.Products)
}

// Get looks up a product by id.
func (c *Catalog) Get(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// IDs returns all product ids in sorted order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// FormatPrice renders a minor-unit amount the way product listings
// show it, e.g. 2500 -> "$25.00".
func FormatPrice(minor int64) string {
	return fmt.Sprintf("$%.2f", float64(minor)/100)
}
