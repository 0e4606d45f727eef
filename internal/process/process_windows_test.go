//go:build windows

package process

import (
	"os/exec"
	"testing"
)

// checkSysProcAttrs verifies the helper gets no console window
func checkSysProcAttrs(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.HideWindow {
		t.Fatalf("SysProcAttr HideWindow not set")
	}
	if cmd.SysProcAttr.CreationFlags&CREATE_NO_WINDOW == 0 {
		t.Fatalf("CREATE_NO_WINDOW not set")
	}
}
