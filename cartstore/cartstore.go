// storefront/cartstore/cartstore.go

// Package cartstore persists cart snapshots per storefront session.
package cartstore

import (
	"context"

	"github.com/norun9/microservices-demo-ambient/storefront/cart"
)

// ICartStore is the storage behind session carts. It satisfies cart.Store
// and adds the lifecycle calls the storefront binary needs.
type ICartStore interface {
	// Initialize blocks until the backend is usable.
	Initialize(ctx context.Context) error

	// Load returns the cart of a session. A session without a stored cart
	// gets a closed cart with no items.
	Load(ctx context.Context, sessionID string) (cart.State, error)
	// Save replaces the stored cart of a session.
	Save(ctx context.Context, sessionID string, state cart.State) error
	// Delete removes the stored cart of a session, if any.
	Delete(ctx context.Context, sessionID string) error

	// Ping reports whether the backend answers.
	Ping(ctx context.Context) bool
}
