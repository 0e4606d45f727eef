package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/helpr/internal/config"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

// syncBuffer is written by the serve goroutine and read by the test.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeInstall(t *testing.T, binary, extra string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "pre-configs")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	tmpl := "set BASE=%~dp0..\\data\r\n\"%BASE%\\sleep\" 30\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "general.bat"), []byte(tmpl), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "discord.bat"),
		[]byte("set LISTS=%~dp0..\\lists\\\r\n\"%LISTS%winws.exe\" --hostlist=\"%LISTS%list.txt\" --wf-tcp=443\r\n"), 0o600))
	cfg := filepath.Join(root, "helpr.toml")
	toml := fmt.Sprintf("install_root = %q\nbinary = %q\nstart_check = \"30ms\"\n%s", filepath.ToSlash(root), binary, extra)
	require.NoError(t, os.WriteFile(cfg, []byte(toml), 0o600))
	return cfg
}

func TestHelpListsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, c := range []string{"serve", "status", "start", "stop", "templates", "use", "resolve", "history"} {
		assert.Contains(t, out, c)
	}
}

func TestResolvePrintsArgs(t *testing.T) {
	cfg := writeInstall(t, "bin/winws.exe", "")
	out, err := run(t, "resolve", "discord", "--config", cfg)
	require.NoError(t, err)

	root := filepath.Dir(cfg)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"--hostlist=" + filepath.Join(root, "lists", "list.txt"),
		"--wf-tcp=443",
	}, lines)

	_, err = run(t, "resolve", "missing", "--config", cfg)
	require.Error(t, err)
}

func TestRemoteCommandsNeedService(t *testing.T) {
	_, err := run(t, "status", "--api-url", "http://127.0.0.1:1/api", "--api-timeout", "200ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestServerURL(t *testing.T) {
	cases := []struct {
		in   config.ServerConfig
		want string
	}{
		{config.ServerConfig{Listen: "127.0.0.1:8585", BasePath: "/api"}, "http://127.0.0.1:8585/api"},
		{config.ServerConfig{Listen: ":9000"}, "http://127.0.0.1:9000"},
		{config.ServerConfig{Listen: "0.0.0.0:1"}, "http://127.0.0.1:1"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, serverURL(c.in))
	}
}

func TestServeEndToEnd(t *testing.T) {
	requireUnix(t)
	cfg := writeInstall(t, "/bin/sleep", "kill_timeout = \"2s\"\n[server]\nlisten = \"127.0.0.1:0\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	out := &syncBuffer{}
	go func() {
		done <- runServe(ctx, ServeFlags{ConfigPath: cfg}, out, func(addr string) { addrCh <- addr })
	}()

	var api string
	select {
	case addr := <-addrCh:
		api = "http://" + addr + "/api"
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not become ready")
	}

	got, err := run(t, "templates", "--api-url", api)
	require.NoError(t, err)
	assert.Equal(t, "  discord\n* general\n", got)

	got, err = run(t, "status", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, got, "stopped")

	got, err = run(t, "start", "--api-url", api)
	require.NoError(t, err)
	assert.Equal(t, "The process 'general' is started!\n", got)

	_, err = run(t, "start", "--api-url", api)
	require.Error(t, err, "second start is refused")

	got, err = run(t, "status", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, got, "running (template: general")

	got, err = run(t, "stop", "--api-url", api)
	require.NoError(t, err)
	assert.Equal(t, "The process 'general' is stopped!\n", got)

	_, err = run(t, "use", "nope", "--api-url", api)
	require.Error(t, err)
	got, err = run(t, "use", "discord", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, got, "discord")

	_, err = run(t, "history", "--api-url", api)
	require.Error(t, err, "history is disabled in this config")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
	assert.Contains(t, out.String(), "Shutting down...")

	persisted, err := config.Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, "discord", persisted.ActiveTemplate())
}
