package template

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reports changes to the set of templates in a Resolver's directory.
// Handlers receive a fresh listing after a debounce window.
type Watcher struct {
	resolver *Resolver
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers []func([]string)

	fw     *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(r *Resolver, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{resolver: r, debounce: debounce, logger: logger, ctx: ctx, cancel: cancel}
}

// OnChange registers a handler. Must be called before Start.
func (w *Watcher) OnChange(fn func(names []string)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.resolver.Dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.fw = fw
	w.done = make(chan struct{})
	w.logger.Info("template watcher started", "dir", w.resolver.Dir, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() error {
	w.cancel()
	if w.fw == nil {
		return nil
	}
	err := w.fw.Close()
	<-w.done
	return err
}

func (w *Watcher) watch() {
	defer close(w.done)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.notify()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("template watcher error", "error", err)
		}
	}
}

func (w *Watcher) notify() {
	names, err := w.resolver.List()
	if err != nil {
		w.logger.Warn("list templates", "error", err)
		return
	}
	w.mu.RLock()
	hs := append([]func([]string){}, w.handlers...)
	w.mu.RUnlock()
	for _, h := range hs {
		h(names)
	}
}
