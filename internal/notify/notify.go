// Package notify carries supervisor state transitions to the presentation
// layer: UI events and the tray icon.
package notify

import (
	"fmt"
	"log/slog"
)

// UI event names.
const (
	EventProcessStarted   = "process-started"
	EventProcessStopped   = "process-stopped"
	EventTemplatesChanged = "templates-changed"
)

// EventSink delivers named UI events. Emit is fire-and-forget.
type EventSink interface {
	Emit(event string, payload map[string]any)
}

// Icon is the tray icon variant.
type Icon int

const (
	IconIdle Icon = iota
	IconActive
)

func (i Icon) String() string {
	switch i {
	case IconActive:
		return "active"
	case IconIdle:
		return "idle"
	default:
		return fmt.Sprintf("icon(%d)", int(i))
	}
}

// Tray switches the tray icon. Failures are reported, never fatal.
type Tray interface {
	SetIcon(variant Icon) error
}

// Nop discards events and icon changes.
type Nop struct{}

func (Nop) Emit(string, map[string]any) {}

func (Nop) SetIcon(Icon) error { return nil }

// LogTray records icon changes in the log; used when running headless.
type LogTray struct {
	Logger *slog.Logger
}

func (t LogTray) SetIcon(variant Icon) error {
	l := t.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Debug("tray icon", "variant", variant.String())
	return nil
}

// Fanout emits to every sink in order.
type Fanout []EventSink

func (f Fanout) Emit(event string, payload map[string]any) {
	for _, s := range f {
		if s != nil {
			s.Emit(event, payload)
		}
	}
}
