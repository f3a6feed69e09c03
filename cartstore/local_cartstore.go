// storefront/cartstore/local_cartstore.go

package cartstore

import (
	"context"
	"sync"

	"github.com/norun9/microservices-demo-ambient/storefront/cart"
	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
	"github.com/sirupsen/logrus"
)

// LocalCartStore keeps carts in process memory.
type LocalCartStore struct {
	mu    sync.RWMutex
	store map[string]cart.State

	log logrus.FieldLogger
}

// NewLocalCartStore returns an empty in-memory store.
func NewLocalCartStore(log logrus.FieldLogger) *LocalCartStore {
	return &LocalCartStore{
		store: make(map[string]cart.State),
		log:   log,
	}
}

// Initialize does nothing in this implementation.
func (l *LocalCartStore) Initialize(ctx context.Context) error {
	l.log.Info("LocalCartStore initialized")
	return nil
}

// Load returns the stored cart of a session, or an empty one.
func (l *LocalCartStore) Load(ctx context.Context, sessionID string) (cart.State, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state, ok := l.store[sessionID]
	if !ok {
		return cart.State{Items: []catalog.Product{}}, nil
	}
	return copyState(state), nil
}

// Save replaces the stored cart of a session.
func (l *LocalCartStore) Save(ctx context.Context, sessionID string, state cart.State) error {
	l.log.WithFields(logrus.Fields{"session": sessionID, "items": len(state.Items)}).Debug("LocalCartStore: Save")
	l.mu.Lock()
	defer l.mu.Unlock()

	l.store[sessionID] = copyState(state)
	return nil
}

// Delete forgets the cart of a session.
func (l *LocalCartStore) Delete(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.store, sessionID)
	return nil
}

// Ping always succeeds.
func (l *LocalCartStore) Ping(ctx context.Context) bool {
	return true
}

func copyState(s cart.State) cart.State {
	items := make([]catalog.Product, len(s.Items))
	copy(items, s.Items)
	return cart.State{Open: s.Open, Items: items}
}
