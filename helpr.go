package helpr

import (
	"net/http"

	"github.com/loykin/helpr/internal/app"
	"github.com/loykin/helpr/internal/notify"
	"github.com/loykin/helpr/internal/server"
	"github.com/loykin/helpr/internal/supervisor"
	"github.com/loykin/helpr/internal/template"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type App = app.App

type Options = app.Options

type Status = supervisor.Status

type State = supervisor.State

type Resolver = template.Resolver

// Presentation hooks implemented by a desktop shell.
type (
	EventSink = notify.EventSink
	Tray      = notify.Tray
	Icon      = notify.Icon
	Envelope  = notify.Envelope
)

const (
	IconIdle   = notify.IconIdle
	IconActive = notify.IconActive

	EventProcessStarted   = notify.EventProcessStarted
	EventProcessStopped   = notify.EventProcessStopped
	EventTemplatesChanged = notify.EventTemplatesChanged
)

// Error kinds, usable with errors.Is.
var (
	ErrTemplateRead    = template.ErrRead
	ErrTemplateParse   = template.ErrParse
	ErrSpawn           = supervisor.ErrSpawn
	ErrAlreadyRunning  = supervisor.ErrAlreadyRunning
	ErrUnknownTemplate = app.ErrUnknownTemplate
)

// Open builds the application context. Call Boot to apply autostart and
// Close on shutdown.
func Open(opts Options) (*App, error) { return app.New(opts) }

// Handler returns the HTTP command surface for a, mounted under basePath.
func Handler(a *App, basePath string) http.Handler {
	return server.NewRouter(a, a.Bus(), basePath).Handler()
}
