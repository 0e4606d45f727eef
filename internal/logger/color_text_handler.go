package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

const colorReset = "\033[0m"

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[36m", // cyan
	slog.LevelInfo:  "\033[32m", // green
	slog.LevelWarn:  "\033[33m", // yellow
	slog.LevelError: "\033[31m", // red
}

// prefixWriter prepends the pending level tag to the next write. The text
// handler emits each record with a single Write.
type prefixWriter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix []byte
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	if len(p.prefix) == 0 {
		return p.w.Write(b)
	}
	line := make([]byte, 0, len(p.prefix)+len(b))
	line = append(line, p.prefix...)
	line = append(line, b...)
	p.prefix = nil
	if _, err := p.w.Write(line); err != nil {
		return 0, err
	}
	return len(b), nil
}

// ColorTextHandler writes slog.TextHandler records behind a colored level tag.
type ColorTextHandler struct {
	*slog.TextHandler
	out *prefixWriter
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	out := &prefixWriter{w: w}
	return &ColorTextHandler{TextHandler: slog.NewTextHandler(out, opts), out: out}
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	color, ok := levelColors[r.Level]
	if !ok {
		color = colorReset
	}
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	h.out.prefix = []byte(color + r.Level.String() + colorReset + " ")
	err := h.TextHandler.Handle(ctx, r)
	h.out.prefix = nil
	return err
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithAttrs(attrs).(*slog.TextHandler), out: h.out}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithGroup(name).(*slog.TextHandler), out: h.out}
}
