// storefront/views/cartitem.go

package views

import (
	"sync"

	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
)

// Stepper is the quantity counter shown next to a cart item. It starts at 1
// and never goes below 0.
type Stepper struct {
	quantity int
}

// NewStepper returns a stepper showing 1.
func NewStepper() *Stepper {
	return &Stepper{quantity: 1}
}

// Increment adds one to the quantity.
func (s *Stepper) Increment() {
	s.quantity++
}

// Decrement subtracts one from the quantity unless it is already 0.
func (s *Stepper) Decrement() {
	if s.quantity > 0 {
		s.quantity--
	}
}

// Quantity returns the displayed quantity.
func (s *Stepper) Quantity() int {
	return s.quantity
}

// CartPanel keeps a stepper per product id for one session's cart panel.
// Quantities live here only; they are never written to the cart.
type CartPanel struct {
	mu       sync.Mutex
	steppers map[string]*Stepper
}

// NewCartPanel returns an empty panel.
func NewCartPanel() *CartPanel {
	return &CartPanel{steppers: make(map[string]*Stepper)}
}

// Mount resets the panel: every listed item starts again at 1.
func (p *CartPanel) Mount(items []catalog.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.steppers = make(map[string]*Stepper, len(items))
	for _, item := range items {
		p.steppers[item.ID] = NewStepper()
	}
}

// Increment bumps the quantity of productID and returns it.
func (p *CartPanel) Increment(productID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stepper(productID)
	s.Increment()
	return s.Quantity()
}

// Decrement lowers the quantity of productID, floored at 0, and returns it.
func (p *CartPanel) Decrement(productID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stepper(productID)
	s.Decrement()
	return s.Quantity()
}

// Quantity returns the displayed quantity of productID.
func (p *CartPanel) Quantity(productID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stepper(productID).Quantity()
}

// Drop forgets the stepper of productID.
func (p *CartPanel) Drop(productID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.steppers, productID)
}

func (p *CartPanel) stepper(productID string) *Stepper {
	s, ok := p.steppers[productID]
	if !ok {
		s = NewStepper()
		p.steppers[productID] = s
	}
	return s
}
