package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Start when a cycle is in progress.
	ErrAlreadyRunning = errors.New("helper is already running")
	// ErrSpawn reports a helper that could not be started or died at once.
	ErrSpawn = errors.New("failed to spawn helper")
)

// SpawnError wraps the cause of a failed launch.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }
