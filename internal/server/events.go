package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/helpr/internal/notify"
)

const (
	eventBuffer   = 32
	keepAlive     = 15 * time.Second
	helloEvent    = "status"
	keepAliveName = "ping"
)

// handleEvents streams UI events as SSE. The first event carries the current
// status so a client can render before anything changes.
func (r *Router) handleEvents(c *gin.Context) {
	ch, cancel := r.events.Channel(eventBuffer)
	defer cancel()

	// long-lived stream: lift the server write timeout for this response
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(helloEvent, statusResp{Enabled: r.ctl.Status(), Active: r.ctl.ActiveTemplate()})
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(e.Name, envelopePayload(e))
			return true
		case <-ticker.C:
			c.SSEvent(keepAliveName, time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}

func envelopePayload(e notify.Envelope) map[string]any {
	p := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		p[k] = v
	}
	p["timestamp"] = e.Timestamp
	return p
}
