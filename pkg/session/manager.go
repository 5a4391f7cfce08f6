package session

import (
	"context"
	"fmt"
	"sync"
)

const managerLogPrefix = "session:Manager"

// RegistrationStore persists the "registered" flag for a session id,
// independent of any one dispatcher process's memory. spec.md's Session
// Manager is named as an external collaborator only; this interface is the
// seam a Postgres-backed (or any other durable) implementation plugs into.
type RegistrationStore interface {
	SetRegistered(ctx context.Context, id string) error
	IsRegistered(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// memoryRegistrationStore is the default, process-local RegistrationStore.
type memoryRegistrationStore struct {
	mu  sync.Mutex
	set map[string]bool
}

func newMemoryRegistrationStore() *memoryRegistrationStore {
	return &memoryRegistrationStore{set: make(map[string]bool)}
}

func (m *memoryRegistrationStore) SetRegistered(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[id] = true
	return nil
}

func (m *memoryRegistrationStore) IsRegistered(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set[id], nil
}

func (m *memoryRegistrationStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, id)
	return nil
}

// Manager is the Session Manager collaborator: creates sessions
// asynchronously, looks them up by id, destroys them, and exposes the
// subsystem event bus.
type Manager struct {
	bus   EventBus
	store RegistrationStore

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Pass nil for store to use an in-memory,
// process-local registration store; pass a PostgresRegistrationStore (or
// any other RegistrationStore) to share registration state across
// dispatcher instances/restarts.
func NewManager(bus EventBus, store RegistrationStore) *Manager {
	if store == nil {
		store = newMemoryRegistrationStore()
	}
	return &Manager{
		bus:      bus,
		store:    store,
		sessions: make(map[string]*Session),
	}
}

// Bus returns the subsystem event bus.
func (m *Manager) Bus() EventBus { return m.bus }

// Create allocates a new Session for id and resolves it asynchronously on
// the returned channel, matching spec.md's "obtained asynchronously"
// contract (§3, §4.5). The channel receives exactly one value (or is
// closed with no value on failure) and is never sent to again.
func (m *Manager) Create(ctx context.Context, id string, send SendFunc) <-chan *Session {
	result := make(chan *Session, 1)

	go func() {
		sess := newSession(id, send)

		if registered, err := m.store.IsRegistered(ctx, id); err == nil && registered {
			sess.MarkRegistered()
		}

		m.mu.Lock()
		m.sessions[id] = sess
		m.mu.Unlock()

		result <- sess
	}()

	return result
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// MarkRegistered flips the session's registration flag and persists it to
// the RegistrationStore.
func (m *Manager) MarkRegistered(ctx context.Context, id string) error {
	sess, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%s - unknown session %q", managerLogPrefix, id)
	}
	sess.MarkRegistered()
	return m.store.SetRegistered(ctx, id)
}

// Destroy removes a session. spec.md §4.5: called 5 seconds after
// connection close, by the Connection Lifecycle's delayed-destroy timer.
func (m *Manager) Destroy(ctx context.Context, id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	_ = m.store.Delete(ctx, id)
}

// Count returns the number of live sessions, for health reporting.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
