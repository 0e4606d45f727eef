package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/helpr/internal/app"
	"github.com/loykin/helpr/internal/history"
	"github.com/loykin/helpr/internal/notify"
	"github.com/loykin/helpr/internal/supervisor"
	"github.com/loykin/helpr/internal/template"
)

// fakeController drives the router without a real helper.
type fakeController struct {
	mu        sync.Mutex
	enabled   bool
	active    string
	templates []string
	startErr  error
	stopErr   error
	events    []history.Event
	noHistory bool
	stopCtx   context.Context
}

func (f *fakeController) Status() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeController) Detail() supervisor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := supervisor.Status{State: supervisor.Idle.String()}
	if f.enabled {
		st = supervisor.Status{State: supervisor.Running.String(), Enabled: true, Template: f.active, PID: 42}
	}
	return st
}

func (f *fakeController) Templates() ([]string, error) {
	if f.templates == nil {
		return nil, template.ErrRead
	}
	return f.templates, nil
}

func (f *fakeController) ActiveTemplate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeController) SetTemplate(name string) error {
	for _, t := range f.templates {
		if t == name {
			f.mu.Lock()
			f.active = name
			f.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %q", app.ErrUnknownTemplate, name)
}

func (f *fakeController) Start(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.enabled {
		return "", supervisor.ErrAlreadyRunning
	}
	f.enabled = true
	return f.active, nil
}

func (f *fakeController) Stop(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCtx = ctx
	if f.stopErr != nil {
		return f.active, f.stopErr
	}
	f.enabled = false
	return f.active, nil
}

func (f *fakeController) History(_ context.Context, limit int) ([]history.Event, error) {
	if f.noHistory {
		return nil, app.ErrNoHistory
	}
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func setupRouter(t *testing.T, base string, ctl Controller, events EventSource) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(ctl, events, base).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusReportsEnabled(t *testing.T) {
	ctl := &fakeController{active: "general"}
	h := setupRouter(t, "/api/", ctl, nil)

	rec := doReq(t, h, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	st := decode[statusResp](t, rec)
	if st.Enabled || st.Active != "general" || st.Helper.State != "idle" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStartStopCycle(t *testing.T) {
	ctl := &fakeController{active: "general"}
	h := setupRouter(t, "/api", ctl, nil)

	rec := doReq(t, h, http.MethodPost, "/api/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[okResp](t, rec); !got.OK || got.Template != "general" {
		t.Fatalf("unexpected start response %+v", got)
	}
	if st := decode[statusResp](t, doReq(t, h, http.MethodGet, "/api/status", nil)); !st.Enabled || st.Helper.PID != 42 {
		t.Fatalf("expected running status, got %+v", st)
	}

	rec = doReq(t, h, http.MethodPost, "/api/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("double start expected 409, got %d", rec.Code)
	}

	rec = doReq(t, h, http.MethodPost, "/api/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ctl.Status() {
		t.Fatalf("expected helper disabled after stop")
	}
}

func TestStartErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&template.ParseError{Name: "x"}, http.StatusUnprocessableEntity},
		{template.ErrRead, http.StatusUnprocessableEntity},
		{&supervisor.SpawnError{Path: "/nope", Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, c := range cases {
		h := setupRouter(t, "", &fakeController{startErr: c.err}, nil)
		rec := doReq(t, h, http.MethodPost, "/start", nil)
		if rec.Code != c.want {
			t.Fatalf("%v: expected %d, got %d", c.err, c.want, rec.Code)
		}
		if e := decode[errorResp](t, rec); e.Error == "" {
			t.Fatalf("expected error message")
		}
	}
}

func TestStopTimeout(t *testing.T) {
	ctl := &fakeController{}
	h := setupRouter(t, "", ctl, nil)

	rec := doReq(t, h, http.MethodPost, "/stop?timeout=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timeout expected 400, got %d", rec.Code)
	}

	rec = doReq(t, h, http.MethodPost, "/stop?timeout=3s", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop expected 200, got %d", rec.Code)
	}
	deadline, ok := ctl.stopCtx.Deadline()
	if !ok || time.Until(deadline) > 3*time.Second {
		t.Fatalf("expected stop deadline within 3s, got %v %v", deadline, ok)
	}

	ctl.stopErr = context.DeadlineExceeded
	rec = doReq(t, h, http.MethodPost, "/stop", nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("deadline expected 504, got %d", rec.Code)
	}
}

func TestTemplatesAndSelection(t *testing.T) {
	ctl := &fakeController{active: "general", templates: []string{"alt &lt;2&gt;", "general"}}
	h := setupRouter(t, "", ctl, nil)

	got := decode[templatesResp](t, doReq(t, h, http.MethodGet, "/templates", nil))
	if len(got.Templates) != 2 || got.Templates[0] != "alt &lt;2&gt;" || got.Active != "general" {
		t.Fatalf("unexpected templates %+v", got)
	}

	rec := doReq(t, h, http.MethodPut, "/template", setTemplateReq{Name: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown template expected 404, got %d", rec.Code)
	}
	rec = doReq(t, h, http.MethodPut, "/template", setTemplateReq{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty name expected 400, got %d", rec.Code)
	}
	rec = doReq(t, h, http.MethodPut, "/template", setTemplateReq{Name: "alt &lt;2&gt;"})
	if rec.Code != http.StatusOK {
		t.Fatalf("select expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ctl.ActiveTemplate() != "alt &lt;2&gt;" {
		t.Fatalf("selection not applied: %s", ctl.ActiveTemplate())
	}
}

func TestTemplatesReadFailure(t *testing.T) {
	h := setupRouter(t, "", &fakeController{}, nil)
	rec := doReq(t, h, http.MethodGet, "/templates", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	now := time.Now().UTC()
	ctl := &fakeController{events: []history.Event{
		{Type: history.EventStop, OccurredAt: now, Record: history.Record{Template: "general", Cycle: 1}},
		{Type: history.EventStart, OccurredAt: now, Record: history.Record{Template: "general", Cycle: 1}},
	}}
	h := setupRouter(t, "", ctl, nil)

	got := decode[[]history.Event](t, doReq(t, h, http.MethodGet, "/history?limit=1", nil))
	if len(got) != 1 || got[0].Type != history.EventStop {
		t.Fatalf("unexpected history %+v", got)
	}
	if rec := doReq(t, h, http.MethodGet, "/history?limit=-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit expected 400, got %d", rec.Code)
	}

	ctl.noHistory = true
	if rec := doReq(t, h, http.MethodGet, "/history", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled history expected 404, got %d", rec.Code)
	}
}

func TestMetricsMount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "helpr_up 1\n") })
	h := NewRouter(&fakeController{}, nil, "/api").WithMetrics(metrics).Handler()
	rec := doReq(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "helpr_up") {
		t.Fatalf("metrics not mounted: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doReq(t, h, http.MethodGet, "/api/events", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("events without a source expected 404, got %d", rec.Code)
	}
}

// readEvent returns the next SSE event name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read sse: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestEventsStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := notify.NewBus()
	ctl := &fakeController{active: "general"}
	srv := httptest.NewServer(NewRouter(ctl, bus, "").Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type: %s", ct)
	}

	r := bufio.NewReader(resp.Body)
	name, data := readEvent(t, r)
	if name != "status" || !strings.Contains(data, `"active_template":"general"`) {
		t.Fatalf("unexpected hello %s %s", name, data)
	}

	bus.Emit(notify.EventProcessStarted, nil)
	bus.Emit(notify.EventProcessStopped, nil)
	bus.Emit(notify.EventTemplatesChanged, map[string]any{"templates": []string{"a"}})

	want := []string{notify.EventProcessStarted, notify.EventProcessStopped, notify.EventTemplatesChanged}
	for _, w := range want {
		name, data = readEvent(t, r)
		if name != w {
			t.Fatalf("expected %s, got %s (%s)", w, name, data)
		}
	}
	if !strings.Contains(data, `"templates":["a"]`) {
		t.Fatalf("templates payload missing: %s", data)
	}
}

func TestNewServerTimeouts(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler())
	if srv.ReadHeaderTimeout == 0 || srv.IdleTimeout == 0 {
		t.Fatalf("expected timeouts to be set")
	}
	_ = srv.Close()
}
