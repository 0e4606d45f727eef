package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loykin/helpr/internal/history"
	"github.com/loykin/helpr/internal/logger"
	"github.com/loykin/helpr/internal/metrics"
	"github.com/loykin/helpr/internal/notify"
	"github.com/loykin/helpr/internal/process"
	"github.com/loykin/helpr/internal/template"
)

const (
	DefaultStartCheck  = 100 * time.Millisecond
	DefaultKillTimeout = 5 * time.Second
	DefaultForceGrace  = time.Second

	historyTimeout = 2 * time.Second
)

// TemplateSource names the template to launch with.
type TemplateSource interface {
	ActiveTemplate() string
}

// TemplateFunc adapts a function to TemplateSource.
type TemplateFunc func() string

func (f TemplateFunc) ActiveTemplate() string { return f() }

// Resolver turns a template name into helper arguments.
// *template.Resolver implements it.
type Resolver interface {
	Resolve(name string) ([]string, error)
}

// Config wires the supervisor to its collaborators.
type Config struct {
	Binary    string // helper executable
	WorkDir   string
	Env       []string // extra "K=V" entries for the helper
	Templates TemplateSource
	Resolver  Resolver
	Events    notify.EventSink
	Tray      notify.Tray
	History   []history.Sink
	Logger    *slog.Logger
	Output    logger.Config // optional rotated copies of helper output

	StartCheck  time.Duration // helper must survive this long after spawn
	KillTimeout time.Duration // graceful wait before kill
	ForceGrace  time.Duration // StopUnsafe default wait
}

// Status is a snapshot for the command surface.
type Status struct {
	State     string         `json:"state"`
	Enabled   bool           `json:"enabled"`
	Template  string         `json:"template,omitempty"`
	PID       int            `json:"pid,omitempty"`
	Cycles    int            `json:"cycles"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	StoppedAt time.Time      `json:"stopped_at,omitempty"`
	ExitErr   string         `json:"exit_error,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	Usage     *process.Usage `json:"usage,omitempty"`
}

// Supervisor owns at most one helper process. All state lives under mu;
// waiters block on changed, which is closed and replaced on every transition.
type Supervisor struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	state     State
	changed   chan struct{}
	proc      *process.Process
	stopCh    chan struct{} // closed to end the current cycle
	template  string
	cycles    int // cycles launched
	tornDown  int // cycles whose teardown completed
	stopAt    time.Time
	startedAt time.Time
	stoppedAt time.Time
	pid       int
	exitErr   error
	lastErr   error // teardown error of the last completed cycle
}

func New(cfg Config) (*Supervisor, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		return nil, errors.New("supervisor: helper binary is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("supervisor: template resolver is required")
	}
	if cfg.Templates == nil {
		return nil, errors.New("supervisor: template source is required")
	}
	if cfg.Events == nil {
		cfg.Events = notify.Nop{}
	}
	if cfg.Tray == nil {
		cfg.Tray = notify.Nop{}
	}
	if cfg.StartCheck <= 0 {
		cfg.StartCheck = DefaultStartCheck
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = DefaultKillTimeout
	}
	if cfg.ForceGrace <= 0 {
		cfg.ForceGrace = DefaultForceGrace
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		cfg:     cfg,
		log:     log.With("component", "supervisor"),
		state:   Idle,
		changed: make(chan struct{}),
	}, nil
}

// setStateLocked must be called with mu held.
func (s *Supervisor) setStateLocked(next State) {
	prev := s.state
	if prev == next {
		return
	}
	s.state = next
	close(s.changed)
	s.changed = make(chan struct{})
	metrics.RecordStateTransition(prev.String(), next.String())
	s.log.Debug("state transition", "from", prev.String(), "to", next.String())
}

// waitFor blocks until cond, evaluated under mu, holds.
func (s *Supervisor) waitFor(ctx context.Context, cond func() bool) error {
	for {
		s.mu.Lock()
		if cond() {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Supervisor) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Enabled()
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		State:     s.state.String(),
		Enabled:   s.state.Enabled(),
		Template:  s.template,
		Cycles:    s.cycles,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
	}
	if s.state.Enabled() {
		st.PID = s.pid
	}
	if s.exitErr != nil {
		st.ExitErr = s.exitErr.Error()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	proc := s.proc
	s.mu.Unlock()

	if proc != nil {
		if u, err := proc.Usage(); err == nil {
			st.Usage = &u
		}
	}
	return st
}

// Start launches the helper with the active template. It fails with
// ErrAlreadyRunning unless the supervisor is idle, and any failure leaves it
// idle. On success it returns the template name.
func (s *Supervisor) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	s.setStateLocked(Launching)
	s.mu.Unlock()

	name, proc, err := s.launch(ctx)
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(Idle)
		s.mu.Unlock()
		s.log.Warn("helper start failed", "template", name, "error", err)
		return "", err
	}

	s.mu.Lock()
	s.cycles++
	cycle := s.cycles
	s.proc = proc
	s.template = name
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	snap := proc.Snapshot()
	s.pid = snap.PID
	s.startedAt = snap.StartedAt
	s.stoppedAt = time.Time{}
	s.exitErr = nil
	s.lastErr = nil
	s.setStateLocked(Running)
	s.mu.Unlock()

	metrics.IncStart(name)
	s.persist(history.EventStart, history.Record{Template: name, Cycle: cycle, PID: snap.PID, StartedAt: snap.StartedAt})
	s.cfg.Events.Emit(notify.EventProcessStarted, nil)
	s.setIcon(notify.IconActive)
	s.log.Info("helper started", "template", name, "pid", snap.PID, "cycle", cycle)

	go s.watch(proc, stopCh, cycle)
	return name, nil
}

func (s *Supervisor) launch(ctx context.Context) (string, *process.Process, error) {
	name := s.cfg.Templates.ActiveTemplate()
	if err := ctx.Err(); err != nil {
		return name, nil, err
	}
	args, err := s.cfg.Resolver.Resolve(name)
	if err != nil {
		metrics.IncStartFailure(failureKind(err))
		return name, nil, err
	}
	if err := ctx.Err(); err != nil {
		return name, nil, err
	}

	proc := process.New(process.Spec{
		Name:          helperName(s.cfg.Binary),
		Path:          s.cfg.Binary,
		Args:          args,
		WorkDir:       s.cfg.WorkDir,
		Env:           s.cfg.Env,
		StartDuration: s.cfg.StartCheck,
		Log:           s.cfg.Output,
	})
	if err := proc.Start(); err != nil {
		metrics.IncStartFailure("spawn")
		return name, nil, &SpawnError{Path: s.cfg.Binary, Err: err}
	}
	if err := proc.EnforceStartDuration(s.cfg.StartCheck); err != nil {
		metrics.IncStartFailure("spawn")
		return name, nil, &SpawnError{Path: s.cfg.Binary, Err: err}
	}
	return name, proc, nil
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, template.ErrParse):
		return "parse"
	case errors.Is(err, template.ErrRead):
		return "read"
	default:
		return "resolve"
	}
}

func helperName(bin string) string {
	base := filepath.Base(bin)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// watch runs once per cycle. It waits for a stop request or for the helper
// to exit, tears the process down and returns the supervisor to Idle.
func (s *Supervisor) watch(proc *process.Process, stopCh <-chan struct{}, cycle int) {
	select {
	case <-stopCh:
	case <-proc.Done():
	}

	s.mu.Lock()
	s.proc = nil
	requested := s.state.StopRequested()
	wait := s.cfg.KillTimeout
	if s.state.Forced() {
		wait = s.cfg.ForceGrace / 2
	}
	stopAt := s.stopAt
	tmpl := s.template
	s.mu.Unlock()

	if !requested {
		stopAt = time.Now()
	}
	err := proc.Stop(wait)
	snap := proc.Snapshot()

	s.mu.Lock()
	forced := s.state.Forced()
	s.mu.Unlock()

	mode := "graceful"
	switch {
	case forced:
		mode = "forced"
	case !requested:
		mode = "exited"
	}
	metrics.IncStop(mode, time.Since(stopAt).Seconds())
	rec := history.Record{
		Template:  tmpl,
		Cycle:     cycle,
		PID:       snap.PID,
		StartedAt: snap.StartedAt,
		StoppedAt: snap.StoppedAt,
		Mode:      mode,
	}
	if snap.ExitErr != nil {
		rec.ExitErr = snap.ExitErr.Error()
	}
	s.persist(history.EventStop, rec)

	if err != nil {
		s.log.Error("helper teardown failed", "pid", snap.PID, "error", err)
	} else {
		s.log.Info("helper stopped", "template", tmpl, "pid", snap.PID, "mode", mode)
	}

	// notifications go out before Idle so a following cycle's "started"
	// can never overtake this "stopped"
	if !forced {
		s.cfg.Events.Emit(notify.EventProcessStopped, nil)
		s.setIcon(notify.IconIdle)
	}

	s.mu.Lock()
	s.stoppedAt = snap.StoppedAt
	s.exitErr = snap.ExitErr
	s.lastErr = err
	s.tornDown = cycle
	s.stopAt = time.Time{}
	s.setStateLocked(Idle)
	s.mu.Unlock()
}

// Stop requests a graceful teardown and blocks until it completes. Stopping
// an idle supervisor is a no-op. A launch in progress is allowed to settle
// first. The teardown error of the cycle is returned.
func (s *Supervisor) Stop(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch s.state {
		case Idle:
			s.mu.Unlock()
			return nil
		case Launching:
			ch := s.changed
			s.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		case Running:
			s.requestStopLocked(Stopping)
		}
		cycle := s.cycles
		s.mu.Unlock()

		if err := s.waitFor(ctx, func() bool { return s.tornDown >= cycle }); err != nil {
			return err
		}
		s.mu.Lock()
		err := s.lastErr
		s.mu.Unlock()
		return err
	}
}

// requestStopLocked must be called with mu held and state Running or Stopping.
func (s *Supervisor) requestStopLocked(next State) {
	if s.state == Running {
		s.stopAt = time.Now()
		close(s.stopCh)
	}
	s.setStateLocked(next)
}

// StopUnsafe is the shutdown path: it forces teardown, skips the stop
// notifications and waits at most grace (ForceGrace when grace <= 0). It
// reports whether teardown finished in time.
func (s *Supervisor) StopUnsafe(grace time.Duration) bool {
	if grace <= 0 {
		grace = s.cfg.ForceGrace
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	for {
		s.mu.Lock()
		switch s.state {
		case Idle:
			s.mu.Unlock()
			return true
		case Launching:
			ch := s.changed
			s.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				s.log.Warn("forced stop gave up waiting for launch", "grace", grace)
				return false
			}
		case Running, Stopping:
			s.requestStopLocked(ForceStopped)
		}
		cycle := s.cycles
		s.mu.Unlock()

		if err := s.waitFor(ctx, func() bool { return s.tornDown >= cycle }); err != nil {
			s.log.Warn("forced stop did not complete in time", "grace", grace)
			return false
		}
		return true
	}
}

func (s *Supervisor) setIcon(v notify.Icon) {
	if err := s.cfg.Tray.SetIcon(v); err != nil {
		s.log.Warn("tray icon update failed", "variant", v.String(), "error", err)
	}
}

func (s *Supervisor) persist(t history.EventType, rec history.Record) {
	if len(s.cfg.History) == 0 {
		return
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	for _, h := range s.cfg.History {
		if err := h.Send(ctx, evt); err != nil {
			s.log.Warn("history sink failed", "event", string(t), "error", err)
		}
	}
}
