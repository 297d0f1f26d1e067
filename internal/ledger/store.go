// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists per-record migration progress in SQLite so a
// rerun can resume where an earlier run stopped: the destination draft id,
// the review request id and the furthest workflow state reached, keyed by
// source record id.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"
)

// Entry is the recorded progress of one source record.
type Entry struct {
	SourceID      string    `json:"source_id" yaml:"source_id"`
	DestinationID string    `json:"destination_id" yaml:"destination_id"`
	RequestID     string    `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	State         string    `json:"state" yaml:"state"`
	PayloadDigest string    `json:"payload_digest,omitempty" yaml:"payload_digest,omitempty"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store is the ledger database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS migrations (
			source_id TEXT PRIMARY KEY,
			destination_id TEXT NOT NULL,
			request_id TEXT,
			state TEXT NOT NULL,
			payload_digest TEXT,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_migrations_state ON migrations(state)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get returns the entry for sourceID. The boolean is false when the record
// has never been recorded.
func (s *Store) Get(ctx context.Context, sourceID string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_id, destination_id, request_id, state, payload_digest, updated_at
		 FROM migrations WHERE source_id = ?`, sourceID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading ledger entry %s: %w", sourceID, err)
	}
	return e, true, nil
}

// Put inserts or replaces the entry for e.SourceID. UpdatedAt is set to
// the current time.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.SourceID == "" || e.DestinationID == "" {
		return fmt.Errorf("ledger entry needs source and destination ids")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO migrations (source_id, destination_id, request_id, state, payload_digest, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
			destination_id=excluded.destination_id, request_id=excluded.request_id,
			state=excluded.state, payload_digest=excluded.payload_digest,
			updated_at=excluded.updated_at`,
		e.SourceID, e.DestinationID, e.RequestID, e.State, e.PayloadDigest,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing ledger entry %s: %w", e.SourceID, err)
	}
	return nil
}

// Delete forgets sourceID so the next run starts it from scratch.
func (s *Store) Delete(ctx context.Context, sourceID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM migrations WHERE source_id = ?`, sourceID)
	if err != nil {
		return false, fmt.Errorf("deleting ledger entry %s: %w", sourceID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns entries ordered by last update, optionally filtered by
// state.
func (s *Store) List(ctx context.Context, state string) ([]Entry, error) {
	query := `SELECT source_id, destination_id, request_id, state, payload_digest, updated_at FROM migrations`
	var args []any
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY updated_at, source_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Export writes all entries to w as YAML or JSON.
func (s *Store) Export(ctx context.Context, w io.Writer, format string) error {
	entries, err := s.List(ctx, "")
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Entry{}
	}

	var data []byte
	switch format {
	case "yaml", "":
		data, err = yaml.Marshal(entries)
	case "json":
		data, err = json.MarshalIndent(entries, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}
	_, err = w.Write(data)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                 Entry
		requestID, digest sql.NullString
		updatedAt         string
	)
	if err := row.Scan(&e.SourceID, &e.DestinationID, &requestID, &e.State, &digest, &updatedAt); err != nil {
		return Entry{}, err
	}
	e.RequestID = requestID.String
	e.PayloadDigest = digest.String
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		e.UpdatedAt = t
	}
	return e, nil
}
