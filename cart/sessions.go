// storefront/cart/sessions.go

package cart

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const saveTimeout = 3 * time.Second

// Store persists cart snapshots per session.
type Store interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, sessionID string, state State) error
	Delete(ctx context.Context, sessionID string) error
}

// Sessions hands out one Manager per storefront session. Managers are
// hydrated from the store on first use and saved back after every mutation.
//
// Saves run in the background, one at a time per session. When several
// mutations happen while a save is in flight only the latest snapshot is
// written next, so a slow store never delays a mutation.
type Sessions struct {
	store Store
	log   logrus.FieldLogger
	now   func() time.Time

	mu       sync.Mutex
	managers map[string]*session

	saves sync.WaitGroup
}

type session struct {
	manager     *Manager
	unsubscribe func()
	lastSeen    time.Time

	saveMu  sync.Mutex
	pending *State
	saving  bool
}

// NewSessions creates a registry backed by store.
func NewSessions(store Store, log logrus.FieldLogger) *Sessions {
	return &Sessions{
		store:    store,
		log:      log,
		now:      time.Now,
		managers: make(map[string]*session),
	}
}

// Get returns the Manager of sessionID, creating it when first seen.
func (s *Sessions) Get(ctx context.Context, sessionID string) *Manager {
	if m, ok := s.touch(sessionID); ok {
		return m
	}

	initial := s.load(ctx, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	// another request may have created it while the store was loading
	if sess, ok := s.managers[sessionID]; ok {
		sess.lastSeen = s.now()
		return sess.manager
	}

	sess := &session{manager: NewManager(initial), lastSeen: s.now()}
	sess.unsubscribe = sess.manager.Subscribe(func(state State) {
		s.enqueue(sessionID, sess, state)
	})
	s.managers[sessionID] = sess
	return sess.manager
}

// Peek returns the cart of sessionID without keeping a Manager for it. A
// session held in memory answers from its Manager, any other from the store.
func (s *Sessions) Peek(ctx context.Context, sessionID string) State {
	if m, ok := s.touch(sessionID); ok {
		return m.GetState()
	}
	return s.load(ctx, sessionID)
}

// Forget drops the in-memory Manager of sessionID. The stored snapshot stays.
func (s *Sessions) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.managers[sessionID]; ok {
		sess.unsubscribe()
		delete(s.managers, sessionID)
	}
}

// Sweep drops the Managers of sessions last used before cutoff and returns
// their ids. Evicted carts that are closed and empty are deleted from the
// store; any other cart is reloaded from it on the next request.
func (s *Sessions) Sweep(ctx context.Context, cutoff time.Time) []string {
	evicted := make(map[string]*session)

	s.mu.Lock()
	for id, sess := range s.managers {
		if sess.lastSeen.Before(cutoff) {
			evicted[id] = sess
			delete(s.managers, id)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for id, sess := range evicted {
		ids = append(ids, id)

		// a Manager still referenced by an in-flight request keeps saving
		state := sess.manager.GetState()
		if state.Open || len(state.Items) > 0 || sess.busy() {
			continue
		}
		if err := s.store.Delete(ctx, id); err != nil {
			s.log.WithError(err).WithField("session", id).Warn("failed to delete empty cart")
		}
	}
	if len(ids) > 0 {
		s.log.WithField("sessions", len(ids)).Debug("evicted idle sessions")
	}
	return ids
}

// Flush waits for the saves in flight.
func (s *Sessions) Flush() {
	s.saves.Wait()
}

// Len reports how many sessions are held in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.managers)
}

func (s *Sessions) touch(sessionID string) (*Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.managers[sessionID]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.manager, true
}

func (s *Sessions) load(ctx context.Context, sessionID string) State {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("failed to load cart, starting empty")
		return State{}
	}
	return state
}

func (s *Sessions) enqueue(sessionID string, sess *session, state State) {
	sess.saveMu.Lock()
	sess.pending = &state
	if sess.saving {
		sess.saveMu.Unlock()
		return
	}
	sess.saving = true
	sess.saveMu.Unlock()

	s.saves.Add(1)
	go s.drain(sessionID, sess)
}

func (s *Sessions) drain(sessionID string, sess *session) {
	defer s.saves.Done()

	for {
		sess.saveMu.Lock()
		if sess.pending == nil {
			sess.saving = false
			sess.saveMu.Unlock()
			return
		}
		state := *sess.pending
		sess.pending = nil
		sess.saveMu.Unlock()

		s.persist(sessionID, state)
	}
}

func (s *Sessions) persist(sessionID string, state State) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := s.store.Save(ctx, sessionID, state); err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("failed to save cart")
	}
}

func (sess *session) busy() bool {
	sess.saveMu.Lock()
	defer sess.saveMu.Unlock()
	return sess.saving
}
