package faultlog

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists fault entries to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a fault journal.
// The path should be a file path (e.g., "./faults.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database lives on one connection only.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS faults (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			bus TEXT NOT NULL,
			subscriber TEXT NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT NOT NULL,
			stack TEXT NOT NULL,
			occurred_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_faults_event_type
		ON faults(event_type, seq)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	entry = normalize(entry)
	_, err := s.db.Exec(`
		INSERT INTO faults (id, seq, bus, subscriber, event_type, message, stack, occurred_at)
		VALUES (
			?,
			COALESCE((SELECT MAX(seq) FROM faults), 0) + 1,
			?, ?, ?, ?, ?, ?
		)
		ON CONFLICT(id) DO UPDATE SET
			bus = excluded.bus,
			subscriber = excluded.subscriber,
			event_type = excluded.event_type,
			message = excluded.message,
			stack = excluded.stack,
			occurred_at = excluded.occurred_at
	`, entry.ID, entry.Bus, entry.Subscriber, entry.EventType, entry.Message, entry.Stack,
		entry.OccurredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record fault: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, bus, subscriber, event_type, message, stack, occurred_at
		FROM faults
		ORDER BY seq DESC
		LIMIT ?
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	return scanEntries(rows)
}

// ListByEventType implements Store.
func (s *SQLiteStore) ListByEventType(eventType string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, bus, subscriber, event_type, message, stack, occurred_at
		FROM faults
		WHERE event_type = ?
		ORDER BY seq DESC
		LIMIT ?
	`, eventType, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list faults by event type: %w", err)
	}
	return scanEntries(rows)
}

// Get implements Store.
func (s *SQLiteStore) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	var e Entry
	var occurredAt string
	err := s.db.QueryRow(`
		SELECT id, bus, subscriber, event_type, message, stack, occurred_at
		FROM faults WHERE id = ?
	`, id).Scan(&e.ID, &e.Bus, &e.Subscriber, &e.EventType, &e.Message, &e.Stack, &occurredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get fault: %w", err)
	}
	e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
	return e, nil
}

// Count implements Store.
func (s *SQLiteStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM faults`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count faults: %w", err)
	}
	return n, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`DELETE FROM faults`); err != nil {
		return fmt.Errorf("clear faults: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var occurredAt string
		if err := rows.Scan(&e.ID, &e.Bus, &e.Subscriber, &e.EventType, &e.Message, &e.Stack, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faults: %w", err)
	}
	return entries, nil
}
