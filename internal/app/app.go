// Package app is the application context: it builds the logger, config,
// resolver, notifier and supervisor once and exposes the UI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/helpr/internal/config"
	"github.com/loykin/helpr/internal/history"
	"github.com/loykin/helpr/internal/metrics"
	"github.com/loykin/helpr/internal/notify"
	"github.com/loykin/helpr/internal/supervisor"
	"github.com/loykin/helpr/internal/template"
)

var ErrUnknownTemplate = errors.New("unknown template")

// Options customize New. Zero values are fine for a headless service.
type Options struct {
	ConfigPath string
	Console    io.Writer        // log console, stderr when nil
	Tray       notify.Tray      // presentation tray; file/log tray when nil
	Events     notify.EventSink // extra sink next to the bus
	Registerer prometheus.Registerer
}

type App struct {
	store    *config.Store
	log      *slog.Logger
	resolver *template.Resolver
	bus      *notify.Bus
	sup      *supervisor.Supervisor
	watcher  *template.Watcher

	closers   []io.Closer
	unsubs    []func()
	logCloser io.Closer
	reader    history.Reader
	closeOnce sync.Once
}

func New(opts Options) (*App, error) {
	store, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg := store.Config()

	log, logCloser, err := cfg.Log.New(opts.Console)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &App{store: store, log: log, logCloser: logCloser, bus: notify.NewBus()}

	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if err := metrics.Register(reg); err != nil {
			a.closeLog()
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	a.resolver = &template.Resolver{
		Root:   cfg.InstallRoot,
		Dir:    cfg.TemplatesDir,
		Ext:    cfg.TemplateExt,
		Binary: filepath.Base(cfg.Binary),
	}

	var sinks []history.Sink
	if cfg.History.Enabled {
		sink, closer, err := history.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			a.closeLog()
			return nil, fmt.Errorf("history: %w", err)
		}
		sinks = append(sinks, sink)
		a.closers = append(a.closers, closer)
		if r, ok := sink.(history.Reader); ok {
			a.reader = r
		}
	}

	helperEnv, err := cfg.HelperEnv()
	if err != nil {
		a.releaseResources()
		return nil, err
	}

	var events notify.EventSink = a.bus
	if opts.Events != nil {
		events = notify.Fanout{a.bus, opts.Events}
	}

	sup, err := supervisor.New(supervisor.Config{
		Binary:      cfg.Binary,
		WorkDir:     cfg.InstallRoot,
		Env:         helperEnv,
		Templates:   store,
		Resolver:    a.resolver,
		Events:      events,
		Tray:        a.tray(opts.Tray, cfg),
		History:     sinks,
		Logger:      log,
		Output:      cfg.Log,
		StartCheck:  cfg.StartCheck,
		KillTimeout: cfg.KillTimeout,
		ForceGrace:  cfg.ForceStopGrace,
	})
	if err != nil {
		a.releaseResources()
		return nil, err
	}
	a.sup = sup
	return a, nil
}

func (a *App) tray(t notify.Tray, cfg config.Config) notify.Tray {
	switch {
	case t != nil:
		return t
	case cfg.Tray.IconDir != "":
		return &notify.FileTray{Dir: cfg.Tray.IconDir, Active: cfg.Tray.Active, Idle: cfg.Tray.Idle}
	default:
		return notify.LogTray{Logger: a.log}
	}
}

// Boot starts the template and config watchers and, when configured,
// launches the helper before any UI request arrives. A failed autostart is
// logged and leaves the helper stopped.
func (a *App) Boot(ctx context.Context) {
	a.watcher = template.NewWatcher(a.resolver, 0, a.log)
	a.watcher.OnChange(func(names []string) {
		a.bus.Emit(notify.EventTemplatesChanged, map[string]any{"templates": names})
	})
	if err := a.watcher.Start(); err != nil {
		a.log.Warn("template watcher disabled", "dir", a.resolver.Dir, "error", err)
		a.watcher = nil
	}

	a.unsubs = append(a.unsubs, a.bus.Subscribe(func(e notify.TemplatesChangedEvent) {
		active := a.store.ActiveTemplate()
		if !slices.Contains(e.Templates, active) {
			a.log.Warn("active template is no longer available", "template", active, "templates", len(e.Templates))
		}
	}))

	a.store.OnChange(func(c config.Config) {
		a.log.Info("config reloaded", "active_template", c.ActiveTemplate)
	})
	a.store.Watch(func(err error) { a.log.Warn("config reload rejected", "error", err) })

	if a.store.Config().Autostart {
		if _, err := a.Start(ctx); err != nil {
			a.log.Error("autostart failed", "error", err)
		}
	}
}

func (a *App) Logger() *slog.Logger                { return a.log }
func (a *App) Bus() *notify.Bus                    { return a.bus }
func (a *App) Supervisor() *supervisor.Supervisor { return a.sup }
func (a *App) Resolver() *template.Resolver        { return a.resolver }
func (a *App) Config() config.Config               { return a.store.Config() }

// Close is the window-close path: forced stop, then logs and sinks are
// flushed. It is safe to call more than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if !a.sup.StopUnsafe(a.store.Config().ForceStopGrace) {
			a.log.Warn("helper was still shutting down at exit")
		}
		for _, unsub := range a.unsubs {
			unsub()
		}
		a.unsubs = nil
		if a.watcher != nil {
			if werr := a.watcher.Stop(); werr != nil {
				err = errors.Join(err, werr)
			}
		}
		a.log.Info("shutting down")
		err = errors.Join(err, a.releaseResources())
	})
	return err
}

func (a *App) releaseResources() error {
	var err error
	for _, c := range a.closers {
		err = errors.Join(err, c.Close())
	}
	a.closers = nil
	return errors.Join(err, a.closeLog())
}

func (a *App) closeLog() error {
	if a.logCloser == nil {
		return nil
	}
	err := a.logCloser.Close()
	a.logCloser = nil
	return err
}

// knownTemplate reports whether name is one of the listed templates.
func (a *App) knownTemplate(name string) (bool, error) {
	names, err := a.resolver.List()
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}
