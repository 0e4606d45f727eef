package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Default icon assets inside the icon directory.
const (
	DefaultActiveIcon = "icon-active.ico"
	DefaultIdleIcon   = "icon.ico"
)

// FileTray loads the icon asset for a variant and hands its bytes to Apply,
// the hook into whatever draws the tray.
type FileTray struct {
	Dir    string
	Active string
	Idle   string
	Apply  func(variant Icon, image []byte) error

	mu      sync.Mutex
	current Icon
	set     bool
}

func (t *FileTray) asset(v Icon) string {
	name := t.Idle
	if name == "" {
		name = DefaultIdleIcon
	}
	if v == IconActive {
		name = t.Active
		if name == "" {
			name = DefaultActiveIcon
		}
	}
	return filepath.Join(t.Dir, name)
}

func (t *FileTray) SetIcon(variant Icon) error {
	path := t.asset(variant)
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load %s icon: %w", variant, err)
	}
	if t.Apply != nil {
		if err := t.Apply(variant, b); err != nil {
			return fmt.Errorf("apply %s icon: %w", variant, err)
		}
	}
	t.mu.Lock()
	t.current, t.set = variant, true
	t.mu.Unlock()
	return nil
}

// Current returns the last successfully applied variant.
func (t *FileTray) Current() (Icon, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.set
}
