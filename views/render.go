// storefront/views/render.go

package views

import (
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/norun9/microservices-demo-ambient/storefront/cart"
	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/pkg/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

// CartItem is one row of the cart panel.
type CartItem struct {
	Product  catalog.Product
	Quantity int
}

// Page carries the fields shared by every page.
type Page struct {
	RequestID string
	Cart      cart.State
	CartItems []CartItem
}

// ProductListPage is the data of the listing page.
type ProductListPage struct {
	Page
	SearchTerm   string
	Products     []catalog.Product
	ErrorMessage string
}

// ErrorPage is the data of the error page.
type ErrorPage struct {
	Page
	StatusCode int
	Status     string
	Error      string
}

// Renderer executes the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse templates")
	}
	return &Renderer{templates: t}, nil
}

// CartItems pairs the items of state with their panel quantities. Without a
// panel every item shows a fresh stepper.
func CartItems(state cart.State, panel *CartPanel) []CartItem {
	items := make([]CartItem, 0, len(state.Items))
	for _, p := range state.Items {
		quantity := NewStepper().Quantity()
		if panel != nil {
			quantity = panel.Quantity(p.ID)
		}
		items = append(items, CartItem{Product: p, Quantity: quantity})
	}
	return items
}

// ProductList renders the listing page.
func (r *Renderer) ProductList(w io.Writer, data ProductListPage) error {
	return errors.Wrap(r.templates.ExecuteTemplate(w, "product_list", data), "failed to render product list")
}

// Error renders the error page.
func (r *Renderer) Error(w io.Writer, data ErrorPage) error {
	if data.Status == "" {
		data.Status = http.StatusText(data.StatusCode)
	}
	return errors.Wrap(r.templates.ExecuteTemplate(w, "error", data), "failed to render error page")
}
