// Package eventstream defines transport-neutral events emitted after a
// stream capture session is persisted, and the Publisher interface that
// carries them to an event stream backend.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/vivek100/spool/pkg/record"
	"github.com/vivek100/spool/pkg/storage"
	"github.com/vivek100/spool/pkg/utils"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSessionRecorded is emitted after a decode session is persisted.
	EventTypeSessionRecorded = "spool.session.recorded"
)

// SessionRecordedEvent is a transport-neutral event payload for a recorded
// decode session.
type SessionRecordedEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Source        EventSource  `json:"source"`
	Session       SessionMeta  `json:"session"`
	Usage         record.Usage `json:"usage"`

	// ContentPreview is a truncated form of the assembled content,
	// suitable for downstream routing and display.
	ContentPreview string `json:"content_preview,omitempty"`
}

// EventSource identifies where the captured stream originated.
type EventSource struct {
	AgentName string `json:"agent_name,omitempty"`
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
}

// SessionMeta captures session lifecycle metadata for the event.
type SessionMeta struct {
	SessionID   string    `json:"session_id"`
	RecordCount int       `json:"record_count"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// previewLimit caps ContentPreview length in bytes.
const previewLimit = 256

// NewSessionRecordedEvent builds the event for a persisted session, stamping
// a fresh event ID and emission time.
func NewSessionRecordedEvent(session *storage.Session) *SessionRecordedEvent {
	preview := utils.Truncate(session.Content, previewLimit)

	return &SessionRecordedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeSessionRecorded,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			AgentName: session.AgentName,
			Provider:  session.Provider,
			Model:     session.Model,
		},
		Session: SessionMeta{
			SessionID:   session.ID,
			RecordCount: session.RecordCount,
			StartedAt:   session.StartedAt,
			CompletedAt: session.CompletedAt,
			DurationMs:  session.CompletedAt.Sub(session.StartedAt).Milliseconds(),
		},
		Usage:          session.Usage,
		ContentPreview: preview,
	}
}
