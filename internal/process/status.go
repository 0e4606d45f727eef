package process

import "time"

// Status is a point-in-time copy of the process bookkeeping.
type Status struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	ExitErr    error     `json:"-"`
	ExitCode   int       `json:"exit_code"`
	DetectedBy string    `json:"detected_by,omitempty"`
}

// Usage is a resource sample of the running process.
type Usage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
}
