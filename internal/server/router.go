package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/helpr/internal/app"
	"github.com/loykin/helpr/internal/history"
	"github.com/loykin/helpr/internal/notify"
	"github.com/loykin/helpr/internal/supervisor"
	"github.com/loykin/helpr/internal/template"
)

const (
	defaultStopTimeout  = 10 * time.Second
	defaultHistoryLimit = 50
)

// Controller is the command surface served over HTTP. *app.App implements it.
type Controller interface {
	Status() bool
	Detail() supervisor.Status
	Templates() ([]string, error)
	ActiveTemplate() string
	SetTemplate(name string) error
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context) (string, error)
	History(ctx context.Context, limit int) ([]history.Event, error)
}

// EventSource feeds the SSE endpoint. *notify.Bus implements it.
type EventSource interface {
	Channel(buffer int) (<-chan notify.Envelope, func())
}

// Router provides embeddable HTTP handlers for the helper.
// Endpoints:
//
//	GET  {basePath}/status
//	GET  {basePath}/templates
//	PUT  {basePath}/template     body: {"name": "..."}
//	POST {basePath}/start
//	POST {basePath}/stop         query: timeout=10s (optional)
//	GET  {basePath}/history      query: limit=50 (optional)
//	GET  {basePath}/events       server-sent events
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctl      Controller
	events   EventSource
	basePath string
	metrics  http.Handler
}

// NewRouter constructs a Router. events may be nil to disable /events.
func NewRouter(ctl Controller, events EventSource, basePath string) *Router {
	return &Router{ctl: ctl, events: events, basePath: sanitizeBase(basePath)}
}

// WithMetrics mounts h at /metrics, outside the base path.
func (r *Router) WithMetrics(h http.Handler) *Router {
	r.metrics = h
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/templates", r.handleTemplates)
	group.PUT("/template", r.handleSetTemplate)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/history", r.handleHistory)
	if r.events != nil {
		group.GET("/events", r.handleEvents)
	}
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer builds a standalone HTTP server for h. The caller runs
// ListenAndServe and Shutdown.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK       bool   `json:"ok"`
	Template string `json:"template,omitempty"`
}

type statusResp struct {
	Enabled bool              `json:"enabled"`
	Active  string            `json:"active_template"`
	Helper  supervisor.Status `json:"helper"`
}

type templatesResp struct {
	Templates []string `json:"templates"`
	Active    string   `json:"active"`
}

type setTemplateReq struct {
	Name string `json:"name"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{
		Enabled: r.ctl.Status(),
		Active:  r.ctl.ActiveTemplate(),
		Helper:  r.ctl.Detail(),
	})
}

func (r *Router) handleTemplates(c *gin.Context) {
	names, err := r.ctl.Templates()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, templatesResp{Templates: names, Active: r.ctl.ActiveTemplate()})
}

func (r *Router) handleSetTemplate(c *gin.Context) {
	var req setTemplateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name required"})
		return
	}
	if err := r.ctl.SetTemplate(req.Name); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, app.ErrUnknownTemplate) {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, Template: req.Name})
}

func (r *Router) handleStart(c *gin.Context) {
	name, err := r.ctl.Start(c.Request.Context())
	if err != nil {
		writeJSON(c, startErrorCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, Template: name})
}

func startErrorCode(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, template.ErrParse), errors.Is(err, template.ErrRead):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) handleStop(c *gin.Context) {
	timeout := defaultStopTimeout
	if s := c.Query("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid timeout"})
			return
		}
		timeout = d
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	name, err := r.ctl.Stop(ctx)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, Template: name})
}

func (r *Router) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		limit = n
	}
	events, err := r.ctl.History(c.Request.Context(), limit)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, app.ErrNoHistory) {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}
