package notify

import (
	"errors"
	"sync"
)

// Recorder keeps every event and icon change in memory. It is an EventSink
// and a Tray, used by embedders that poll state and by tests.
type Recorder struct {
	mu      sync.Mutex
	events  []string
	icons   []Icon
	trayErr error
}

func (r *Recorder) Emit(event string, _ map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *Recorder) SetIcon(variant Icon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trayErr != nil {
		return r.trayErr
	}
	r.icons = append(r.icons, variant)
	return nil
}

// FailTray makes subsequent SetIcon calls fail with err.
func (r *Recorder) FailTray(err error) {
	if err == nil {
		err = errors.New("tray unavailable")
	}
	r.mu.Lock()
	r.trayErr = err
	r.mu.Unlock()
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *Recorder) Icons() []Icon {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Icon(nil), r.icons...)
}
