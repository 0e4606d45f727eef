package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/loykin/helpr/internal/history"
	"github.com/loykin/helpr/internal/supervisor"
)

// ErrNoHistory is returned when no readable history sink is configured.
var ErrNoHistory = errors.New("history is not enabled")

// Status reports whether the helper is enabled.
func (a *App) Status() bool { return a.sup.IsEnabled() }

func (a *App) Detail() supervisor.Status { return a.sup.Status() }

// Templates lists template names, HTML-escaped for the UI.
func (a *App) Templates() ([]string, error) {
	names, err := a.resolver.EscapedList()
	if err != nil {
		a.log.Error("failed to list templates", "dir", a.resolver.Dir, "error", err)
		return nil, err
	}
	return names, nil
}

// ActiveTemplate is the template the next start will use.
func (a *App) ActiveTemplate() string { return a.store.ActiveTemplate() }

// SetTemplate selects and persists the template for the next start. A
// running helper keeps its current template.
func (a *App) SetTemplate(name string) error {
	ok, err := a.knownTemplate(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	if err := a.store.SetActiveTemplate(name); err != nil {
		a.log.Error("failed to save template selection", "template", name, "error", err)
		return err
	}
	a.log.Info("template selected", "template", name)
	return nil
}

// Start launches the helper and returns the template it runs with.
func (a *App) Start(ctx context.Context) (string, error) {
	name, err := a.sup.Start(ctx)
	if err != nil {
		if name == "" {
			name = a.store.ActiveTemplate()
		}
		a.log.Error("Failed to run the process", "template", name, "error", err)
		return "", err
	}
	a.log.Info("The process is started!", "template", name)
	return name, nil
}

// Stop tears the helper down and waits for it. The returned name is the
// template the stopped cycle ran with.
func (a *App) Stop(ctx context.Context) (string, error) {
	name := a.sup.Status().Template
	if err := a.sup.Stop(ctx); err != nil {
		a.log.Error("Failed to stop the process", "template", name, "error", err)
		return name, err
	}
	a.log.Info("The process is stopped!", "template", name)
	return name, nil
}

// Resolve shows the argument list a template would launch with.
func (a *App) Resolve(name string) ([]string, error) {
	return a.resolver.Resolve(name)
}

// History returns the most recent lifecycle events, newest first.
func (a *App) History(ctx context.Context, limit int) ([]history.Event, error) {
	if a.reader == nil {
		return nil, ErrNoHistory
	}
	return a.reader.Recent(ctx, limit)
}
