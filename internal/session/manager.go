package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session ID is unknown to both the
// in-memory map and the store.
var ErrSessionNotFound = errors.New("session not found")

// Record is one persisted session.
type Record struct {
	ID        string
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence contract for session state.
// A missing session is nil, nil, not an error.
type Store interface {
	GetSession(ctx context.Context, id string) (*Record, error)
	UpsertSession(ctx context.Context, id string, state State) error
	DeleteSession(ctx context.Context, id string) error
}

// Manager owns the live coordinators, one per session, and writes their
// state through to the store so a browser session can be restored after the
// process restarts. Snapshot caches are not persisted; they are rebuilt by
// fetching.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Coordinator

	store    Store
	fetcher  WeatherFetcher
	searcher CitySearcher
	log      *slog.Logger
}

// NewManager constructs a Manager with all dependencies.
func NewManager(store Store, fetcher WeatherFetcher, searcher CitySearcher, log *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Coordinator),
		store:    store,
		fetcher:  fetcher,
		searcher: searcher,
		log:      log,
	}
}

// Create starts a new session with the default city list and persists it.
func (m *Manager) Create(ctx context.Context) (string, *Coordinator, error) {
	id := uuid.NewString()
	coord := NewCoordinator(nil, 0, "", m.fetcher, m.searcher, m.log)

	if err := m.store.UpsertSession(ctx, id, coord.State()); err != nil {
		return "", nil, fmt.Errorf("persisting new session: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = coord
	m.mu.Unlock()

	return id, coord, nil
}

// Get returns the live coordinator for a session, rebuilding it from the
// store when the process no longer holds it in memory.
func (m *Manager) Get(ctx context.Context, id string) (*Coordinator, error) {
	m.mu.Lock()
	if coord, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return coord, nil
	}
	m.mu.Unlock()

	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}

	coord := NewCoordinator(rec.State.Cities, rec.State.ActiveIndex, rec.State.Units, m.fetcher, m.searcher, m.log)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have rebuilt it concurrently; keep the first.
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = coord
	return coord, nil
}

// Persist writes a session's current state through to the store.
func (m *Manager) Persist(ctx context.Context, id string, coord *Coordinator) error {
	if err := m.store.UpsertSession(ctx, id, coord.State()); err != nil {
		return fmt.Errorf("persisting session %s: %w", id, err)
	}
	return nil
}

// Delete drops a session from memory and the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := m.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}
