// Package inmemory provides a map-backed storage driver, used by tests and
// as the default when no database is configured.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/vivek100/spool/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	mu       sync.RWMutex
	sessions map[string]*storage.Session
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		sessions: make(map[string]*storage.Session),
	}
}

// Save stores a session, overwriting any existing entry with the same ID.
func (d *Driver) Save(_ context.Context, session *storage.Session) error {
	if session == nil {
		return errors.New("cannot store nil session")
	}
	if session.ID == "" {
		return errors.New("session ID is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	copied := *session
	d.sessions[session.ID] = &copied
	return nil
}

// Get retrieves a session by ID.
func (d *Driver) Get(_ context.Context, id string) (*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	session, ok := d.sessions[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	copied := *session
	return &copied, nil
}

// List returns all sessions, most recently completed first.
func (d *Driver) List(_ context.Context) ([]*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*storage.Session, 0, len(d.sessions))
	for _, session := range d.sessions {
		copied := *session
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})

	return out, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
