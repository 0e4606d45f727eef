package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/loykin/helpr/internal/app"
	"github.com/loykin/helpr/internal/metrics"
	"github.com/loykin/helpr/internal/server"
)

const shutdownTimeout = 5 * time.Second

// runServe boots the application and serves until ctx is done. ready, when
// set, receives the bound API address.
func runServe(ctx context.Context, f ServeFlags, out io.Writer, ready func(addr string)) error {
	a, err := app.New(app.Options{ConfigPath: f.ConfigPath})
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			_, _ = fmt.Fprintf(out, "shutdown: %v\n", cerr)
		}
	}()

	cfg := a.Config()
	a.Boot(ctx)

	var servers []*http.Server
	errCh := make(chan error, 2)
	serve := func(srv *http.Server, ln net.Listener) {
		servers = append(servers, srv)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		serve(server.NewServer(cfg.Metrics.Listen, mux), ln)
		_, _ = fmt.Fprintf(out, "Serving metrics on %s/metrics\n", ln.Addr())
	}

	if cfg.Server.Enabled {
		listen := cfg.Server.Listen
		if f.Listen != "" {
			listen = f.Listen
		}
		router := server.NewRouter(a, a.Bus(), cfg.Server.BasePath)
		if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
			router.WithMetrics(metrics.Handler())
		}
		ln, err := net.Listen("tcp", listen)
		if err != nil {
			for _, srv := range servers {
				_ = srv.Close()
			}
			return fmt.Errorf("listen %s: %w", listen, err)
		}
		serve(server.NewServer(listen, router.Handler()), ln)
		_, _ = fmt.Fprintf(out, "Starting helpr HTTP server on %s%s\n", ln.Addr(), cfg.Server.BasePath)
		if ready != nil {
			ready(ln.Addr().String())
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	_, _ = fmt.Fprintln(out, "Shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(sctx); err != nil {
			_ = srv.Close()
		}
	}
	return runErr
}
