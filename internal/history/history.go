package history

import (
	"context"
	"time"
)

// EventType defines the kind of run-cycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
)

// Record describes one run cycle of the helper.
type Record struct {
	Template  string    `json:"template"`
	Cycle     int       `json:"cycle"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Mode      string    `json:"mode,omitempty"` // graceful, forced, exited
	ExitErr   string    `json:"exit_err,omitempty"`
}

// Event represents a run-cycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader is implemented by sinks that can list what they stored.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}
