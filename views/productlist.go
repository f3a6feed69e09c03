// storefront/views/productlist.go

// Package views holds the page-level state of the storefront and renders it.
package views

import (
	"context"

	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
)

// LoadErrorMessage is shown in place of the list when the fetch fails.
const LoadErrorMessage = "Problemas ao carregar a lista!"

// ProductList is the state behind the product listing page.
type ProductList struct {
	api catalog.Lister

	products   []catalog.Product
	searchTerm string
	loadErr    error
}

// NewProductList creates an unmounted list backed by api.
func NewProductList(api catalog.Lister) *ProductList {
	return &ProductList{api: api}
}

// Mount fetches the product collection once and replaces the local copy.
func (l *ProductList) Mount(ctx context.Context) error {
	products, err := l.api.ListProducts(ctx)
	if err != nil {
		l.products = nil
		l.loadErr = err
		return err
	}
	l.products = products
	l.loadErr = nil
	return nil
}

// Search sets the term used to filter the list.
func (l *ProductList) Search(term string) {
	l.searchTerm = term
}

// SearchTerm returns the current term.
func (l *ProductList) SearchTerm() string {
	return l.searchTerm
}

// Products returns the products matching the current term.
func (l *ProductList) Products() []catalog.Product {
	if l.loadErr != nil {
		return []catalog.Product{}
	}
	return catalog.Filter(l.products, l.searchTerm)
}

// Total is the size of the unfiltered list.
func (l *ProductList) Total() int {
	return len(l.products)
}

// Err returns the error of the last mount.
func (l *ProductList) Err() error {
	return l.loadErr
}

// ErrorMessage returns LoadErrorMessage when the last mount failed.
func (l *ProductList) ErrorMessage() string {
	if l.loadErr != nil {
		return LoadErrorMessage
	}
	return ""
}
