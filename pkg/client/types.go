package client

import "time"

// HelperStatus mirrors the supervisor snapshot.
type HelperStatus struct {
	State     string    `json:"state"`
	Enabled   bool      `json:"enabled"`
	Template  string    `json:"template,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Cycles    int       `json:"cycles"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitErr   string    `json:"exit_error,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
}

type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}

// StatusResponse is returned by GET /status
type StatusResponse struct {
	Enabled bool         `json:"enabled"`
	Active  string       `json:"active_template"`
	Helper  HelperStatus `json:"helper"`
}

// TemplatesResponse is returned by GET /templates. Names are HTML-escaped.
type TemplatesResponse struct {
	Templates []string `json:"templates"`
	Active    string   `json:"active"`
}

// SetTemplateRequest is the body of PUT /template
type SetTemplateRequest struct {
	Name string `json:"name"`
}

// OKResponse acknowledges start, stop and template selection.
type OKResponse struct {
	OK       bool   `json:"ok"`
	Template string `json:"template,omitempty"`
}

// HistoryEvent is one persisted lifecycle event.
type HistoryEvent struct {
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Record     HistoryRecord `json:"record"`
}

type HistoryRecord struct {
	Template  string    `json:"template"`
	Cycle     int       `json:"cycle"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	ExitErr   string    `json:"exit_err,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
