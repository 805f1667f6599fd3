// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver

	"github.com/vivek100/spool/pkg/record"
	"github.com/vivek100/spool/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	provider     TEXT NOT NULL,
	agent_name   TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	record_count INTEGER NOT NULL DEFAULT 0,
	usage_json   TEXT NOT NULL DEFAULT '{}',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_completed_at ON sessions (completed_at DESC);
`

// Driver implements storage.Driver using SQLite via database/sql.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite-specific pragmas
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{db: db}, nil
}

// Save upserts a session row.
func (d *Driver) Save(ctx context.Context, session *storage.Session) error {
	if session == nil {
		return errors.New("cannot store nil session")
	}

	usageJSON, err := json.Marshal(session.Usage)
	if err != nil {
		return fmt.Errorf("encoding usage: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO sessions (id, provider, agent_name, model, content, record_count, usage_json, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			agent_name = excluded.agent_name,
			model = excluded.model,
			content = excluded.content,
			record_count = excluded.record_count,
			usage_json = excluded.usage_json,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		session.ID, session.Provider, session.AgentName, session.Model,
		session.Content, session.RecordCount, string(usageJSON),
		session.StartedAt, session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	return nil
}

// Get retrieves a session by ID.
func (d *Driver) Get(ctx context.Context, id string) (*storage.Session, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, provider, agent_name, model, content, record_count, usage_json, started_at, completed_at
		FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	return session, nil
}

// List returns all sessions, most recently completed first.
func (d *Driver) List(ctx context.Context) ([]*storage.Session, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, provider, agent_name, model, content, record_count, usage_json, started_at, completed_at
		FROM sessions ORDER BY completed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*storage.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	return sessions, nil
}

// Close closes the underlying database handle.
func (d *Driver) Close() error {
	return d.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*storage.Session, error) {
	var (
		session   storage.Session
		usageJSON string
		started   time.Time
		completed time.Time
	)

	err := s.Scan(&session.ID, &session.Provider, &session.AgentName,
		&session.Model, &session.Content, &session.RecordCount,
		&usageJSON, &started, &completed)
	if err != nil {
		return nil, err
	}

	var usage record.Usage
	if err := json.Unmarshal([]byte(usageJSON), &usage); err != nil {
		return nil, fmt.Errorf("decoding usage: %w", err)
	}

	session.Usage = usage
	session.StartedAt = started
	session.CompletedAt = completed
	return &session, nil
}
