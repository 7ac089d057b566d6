// Package faultlog records subscriber faults caught during dispatch.
//
// The journal holds diagnostics only: which subscriber panicked on which event
// type, the panic message and the stack. Event payloads are never stored.
package faultlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists fault entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends an entry. An empty ID or zero OccurredAt is filled in.
	Record(entry Entry) error

	// List returns the most recent entries, newest first.
	// A limit <= 0 returns every entry.
	List(limit int) ([]Entry, error)

	// ListByEventType returns the most recent entries for one event type.
	ListByEventType(eventType string, limit int) ([]Entry, error)

	// Get returns a single entry by ID.
	// Returns ErrNotFound if it doesn't exist.
	Get(id string) (Entry, error)

	// Count returns the number of stored entries.
	Count() (int, error)

	// Clear removes every entry.
	Clear() error

	// Close releases any resources (connections, files).
	Close() error
}

// Entry describes one subscriber fault.
type Entry struct {
	ID         string    `json:"id"`
	Bus        string    `json:"bus,omitempty"`
	Subscriber string    `json:"subscriber"`
	EventType  string    `json:"event_type"`
	Message    string    `json:"message"`
	Stack      string    `json:"stack,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEntry creates an entry with a fresh ID and the current time.
func NewEntry(bus, subscriber, eventType string, value any, stack string) Entry {
	return Entry{
		ID:         newID(),
		Bus:        bus,
		Subscriber: subscriber,
		EventType:  eventType,
		Message:    fmt.Sprint(value),
		Stack:      stack,
		OccurredAt: time.Now().UTC(),
	}
}

func newID() string {
	return fmt.Sprintf("fault-%s", uuid.New().String())
}

// normalize fills in the fields Record is allowed to default.
func normalize(e Entry) Entry {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}

// Sentinel errors for fault log operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("fault entry not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("fault store closed")
)
