package memory

import (
	"context"
	"sync"

	"homedesk/internal/domain/chat"
)

// EventRecorder collects published domain events so tests can assert on
// them.
type EventRecorder struct {
	mu     sync.Mutex
	events []chat.DomainEvent
}

// NewEventRecorder builds an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Publish records the event.
func (r *EventRecorder) Publish(ctx context.Context, event chat.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (r *EventRecorder) Events() []chat.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.DomainEvent, len(r.events))
	copy(out, r.events)
	return out
}
