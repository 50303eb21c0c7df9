// Package events publishes control-plane events: status transitions,
// optimization outcomes, tier moves and migrations.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event kind
type Type string

const (
	TypeStatusChanged Type = "deployment.status_changed"
	TypeDeleted       Type = "deployment.deleted"
	TypeMigrated      Type = "deployment.migrated"
	TypeOutcome       Type = "optimization.outcome"
	TypeTierMoved     Type = "storage.tier_moved"
)

// Event is one published fact. Key orders events per subject on partitioned transports.
type Event struct {
	ID      string      `json:"id"`
	Type    Type        `json:"type"`
	Key     string      `json:"key"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// New creates an event with a fresh id
func New(t Type, key string, payload interface{}) Event {
	return Event{
		ID:      uuid.New().String(),
		Type:    t,
		Key:     key,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}

// Publisher delivers events. Publishing is best effort: callers log failures
// and never roll back state because of them.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (Nop) Close() error { return nil }

// DefaultMemoryCapacity bounds the in-memory event buffer
const DefaultMemoryCapacity = 500

// Memory keeps the most recent events in process
type Memory struct {
	mu       sync.Mutex
	capacity int
	events   []Event
}

// NewMemory creates an in-memory publisher holding up to capacity events
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

// Publish implements Publisher
func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)
	if over := len(m.events) - m.capacity; over > 0 {
		m.events = append([]Event(nil), m.events[over:]...)
	}
	return nil
}

// Recent returns up to n of the latest events, oldest first, optionally filtered by type
func (m *Memory) Recent(n int, t Type) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, 0, len(m.events))
	for _, ev := range m.events {
		if t == "" || ev.Type == t {
			out = append(out, ev)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Close implements Publisher
func (m *Memory) Close() error { return nil }

// Fanout delivers every event to each of its publishers
type Fanout []Publisher

// Publish implements Publisher. Every publisher is attempted; their errors are joined.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher
func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
