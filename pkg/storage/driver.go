// Package storage defines the persistence interface for captured stream
// sessions and their decoded records.
package storage

import (
	"context"
	"time"

	"github.com/vivek100/spool/pkg/record"
)

// Session is one decoded stream capture: the assembled content, usage and
// record accounting for a single decode session over one byte source.
type Session struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// Provider is the streaming format the session was decoded as.
	Provider string `json:"provider"`

	// AgentName tags the agent that produced the stream, if known.
	AgentName string `json:"agent_name,omitempty"`

	// Model is the model name reported by the stream, if any.
	Model string `json:"model,omitempty"`

	// Content is the assembled message text.
	Content string `json:"content"`

	// RecordCount is the number of decoded records delivered.
	RecordCount int `json:"record_count"`

	// Usage is the accumulated token accounting.
	Usage record.Usage `json:"usage"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Driver defines the interface for persisting and retrieving captured
// sessions in a storage backend.
type Driver interface {
	// Save stores a session. Saving an existing ID overwrites it.
	Save(ctx context.Context, session *Session) error

	// Get retrieves a session by ID. Returns NotFoundError if absent.
	Get(ctx context.Context, id string) (*Session, error)

	// List returns all sessions, most recently completed first.
	List(ctx context.Context) ([]*Session, error)

	// Close closes the store and releases any resources.
	Close() error
}
