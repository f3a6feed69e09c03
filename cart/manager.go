// storefront/cart/manager.go

// Package cart holds the shopping cart state of a storefront session.
package cart

import (
	"sync"

	"github.com/norun9/microservices-demo-ambient/storefront/catalog"
)

// State is a snapshot of a cart. Snapshots are copies: changing one never
// changes the Manager it came from.
type State struct {
	Open  bool              `json:"open"`
	Items []catalog.Product `json:"items"`
}

func (s State) clone() State {
	items := make([]catalog.Product, len(s.Items))
	copy(items, s.Items)
	return State{Open: s.Open, Items: items}
}

// Manager is an observable cart. Every mutator returns the resulting snapshot
// and notifies subscribers with it. Subscribers may read the Manager but must
// not mutate it.
type Manager struct {
	// held across a mutation and its notifications so subscribers see
	// snapshots in mutation order
	notifyMu sync.Mutex

	mu     sync.Mutex
	state  State
	subs   []*subscription
	nextID int
}

type subscription struct {
	id int
	fn func(State)
}

// NewManager creates a Manager starting from a copy of initial.
func NewManager(initial State) *Manager {
	return &Manager{state: initial.clone()}
}

// Subscribe registers fn to receive the snapshot produced by each mutation.
// The returned func removes the subscription.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, &subscription{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// mutate applies fn under the lock, then notifies subscribers outside of it.
func (m *Manager) mutate(fn func(s *State)) State {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	fn(&m.state)
	snapshot := m.state.clone()
	subs := make([]*subscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn(snapshot.clone())
	}
	return snapshot
}

// Open marks the cart as open.
func (m *Manager) Open() State {
	return m.mutate(func(s *State) { s.Open = true })
}

// Close marks the cart as closed.
func (m *Manager) Close() State {
	return m.mutate(func(s *State) { s.Open = false })
}

// ProductIsInTheCart reports whether an item with the product's id is present.
func (m *Manager) ProductIsInTheCart(product catalog.Product) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return containsID(m.state.Items, product.ID)
}

// AddProduct appends product unless an item with the same id is present.
func (m *Manager) AddProduct(product catalog.Product) State {
	state, _ := m.TryAddProduct(product)
	return state
}

// TryAddProduct is AddProduct that also reports whether the item was added.
func (m *Manager) TryAddProduct(product catalog.Product) (State, bool) {
	var added bool
	state := m.mutate(func(s *State) {
		if !containsID(s.Items, product.ID) {
			s.Items = append(s.Items, product)
			added = true
		}
	})
	return state, added
}

// RemoveProduct drops every item with the given id.
func (m *Manager) RemoveProduct(productID string) State {
	state, _ := m.TryRemoveProduct(productID)
	return state
}

// TryRemoveProduct is RemoveProduct that also reports whether anything was
// removed.
func (m *Manager) TryRemoveProduct(productID string) (State, bool) {
	var removed bool
	state := m.mutate(func(s *State) {
		kept := make([]catalog.Product, 0, len(s.Items))
		for _, item := range s.Items {
			if item.ID != productID {
				kept = append(kept, item)
			}
		}
		removed = len(kept) != len(s.Items)
		s.Items = kept
	})
	return state, removed
}

// ClearProducts empties the item list.
func (m *Manager) ClearProducts() State {
	return m.mutate(func(s *State) { s.Items = []catalog.Product{} })
}

// ClearCart empties the item list and closes the cart.
func (m *Manager) ClearCart() State {
	return m.mutate(func(s *State) {
		s.Items = []catalog.Product{}
		s.Open = false
	})
}

// HasProducts reports whether the cart holds any item.
func (m *Manager) HasProducts() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.Items) > 0
}

// GetState returns the current snapshot.
func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func containsID(items []catalog.Product, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}
