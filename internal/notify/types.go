package notify

import "time"

// Event type constants for kelindar/event.
const (
	TypeProcessStarted uint32 = iota + 1
	TypeProcessStopped
	TypeTemplatesChanged
	TypeEnvelope
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessStartedEvent is published when the helper is up.
type ProcessStartedEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e ProcessStartedEvent) Type() uint32 { return TypeProcessStarted }

// ProcessStoppedEvent is published after the helper has been torn down.
type ProcessStoppedEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e ProcessStoppedEvent) Type() uint32 { return TypeProcessStopped }

// TemplatesChangedEvent carries the new template listing.
type TemplatesChangedEvent struct {
	Templates []string  `json:"templates"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TemplatesChangedEvent) Type() uint32 { return TypeTemplatesChanged }

// Envelope is the untyped form of every emitted event. A single envelope
// subscription sees events in emit order regardless of their type.
type Envelope struct {
	Name      string         `json:"event"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e Envelope) Type() uint32 { return TypeEnvelope }
