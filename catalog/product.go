// storefront/catalog/product.go

package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Product is a catalog item as served by the products API.
type Product struct {
	ID    string          `json:"id" yaml:"id"`
	Title string          `json:"title" yaml:"title"`
	Price decimal.Decimal `json:"price" yaml:"price"`
}

// DisplayPrice formats the price with two decimal places.
func (p Product) DisplayPrice() string {
	return p.Price.StringFixed(2)
}

// Filter returns the products whose title contains term. The match is case
// sensitive. An empty term returns every product.
func Filter(products []Product, term string) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if term == "" || strings.Contains(p.Title, term) {
			out = append(out, p)
		}
	}
	return out
}
