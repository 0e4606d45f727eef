package process

import (
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/helpr/internal/logger"
)

var ErrNoPath = errors.New("process path is required")

// Spec describes the helper executable and its launch arguments.
type Spec struct {
	Name          string        `json:"name"`
	Path          string        `json:"path"`           // absolute path of the executable
	Args          []string      `json:"args"`           // resolved argv without the program name
	WorkDir       string        `json:"work_dir"`       // optional working dir
	Env           []string      `json:"env"`            // optional extra env, appended to the parent's
	StartDuration time.Duration `json:"start_duration"` // process must stay up this long to count as started
	Log           logger.Config `json:"log"`            // optional rotated copies of stdout/stderr
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return ErrNoPath
	}
	return nil
}

// BuildCommand constructs the *exec.Cmd for the spec. The argument list is
// passed through untouched; no shell is involved.
func (s Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- path comes from configuration, args from the resolved template
	cmd := exec.Command(s.Path, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd
}
