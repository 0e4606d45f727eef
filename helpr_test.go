package helpr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

type shell struct {
	events chan string
	icons  chan Icon
}

func (s *shell) Emit(event string, _ map[string]any) { s.events <- event }

func (s *shell) SetIcon(i Icon) error {
	s.icons <- i
	return nil
}

func writeConfig(t *testing.T, tmpl string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "pre-configs")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "general.bat"), []byte(tmpl), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(root, "helpr.toml")
	body := "install_root = \"" + filepath.ToSlash(root) + "\"\nbinary = \"/bin/sleep\"\nstart_check = \"30ms\"\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestFacadeStartStopWithShell(t *testing.T) {
	requireUnix(t)
	cfg := writeConfig(t, "\"%BASE%\\sleep\" 30\r\n")
	sh := &shell{events: make(chan string, 4), icons: make(chan Icon, 4)}
	a, err := Open(Options{ConfigPath: cfg, Events: sh, Tray: sh, Console: &strings.Builder{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()

	if _, err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !a.Status() {
		t.Fatalf("expected enabled after start")
	}
	if _, err := a.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	for _, want := range []string{EventProcessStarted, EventProcessStopped} {
		select {
		case got := <-sh.events:
			if got != want {
				t.Fatalf("event %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("missing event %s", want)
		}
	}
	if <-sh.icons != IconActive || <-sh.icons != IconIdle {
		t.Fatalf("unexpected icon sequence")
	}
}

func TestFacadeParseError(t *testing.T) {
	cfg := writeConfig(t, "echo no command line here\r\n")
	a, err := Open(Options{ConfigPath: cfg, Console: &strings.Builder{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()
	if _, err := a.Start(context.Background()); !errors.Is(err, ErrTemplateParse) {
		t.Fatalf("expected ErrTemplateParse, got %v", err)
	}
	if a.Status() {
		t.Fatalf("parse failure must leave the helper stopped")
	}
}

func TestHandlerServesStatus(t *testing.T) {
	cfg := writeConfig(t, "\"sleep\" 1\r\n")
	a, err := Open(Options{ConfigPath: cfg, Console: &strings.Builder{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = a.Close() }()

	rec := httptest.NewRecorder()
	Handler(a, "/api").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"enabled":false`) {
		t.Fatalf("unexpected status response %d %s", rec.Code, rec.Body.String())
	}
}
