package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"strings"

	"github.com/loykin/helpr/internal/config"
	"github.com/loykin/helpr/internal/template"
	"github.com/loykin/helpr/pkg/client"
)

type command struct {
	flags *GlobalFlags
}

// apiURL picks --api-url, else the [server] section of the config.
func (c *command) apiURL() (string, error) {
	if c.flags.APIUrl != "" {
		return strings.TrimRight(c.flags.APIUrl, "/"), nil
	}
	store, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return "", err
	}
	return serverURL(store.Config().Server), nil
}

func serverURL(s config.ServerConfig) string {
	host := s.Listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	host = strings.Replace(host, "0.0.0.0:", "127.0.0.1:", 1)
	return "http://" + host + s.BasePath
}

// apiClient returns a client for a reachable service.
func (c *command) apiClient(ctx context.Context) (*client.Client, error) {
	u, err := c.apiURL()
	if err != nil {
		return nil, err
	}
	cl := client.New(client.Config{BaseURL: u, Timeout: c.flags.APITimeout})
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("service not reachable at %s - please start it first with 'helpr serve'", u)
	}
	return cl, nil
}

func (c *command) Status(ctx context.Context, out io.Writer) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	if !st.Enabled {
		_, _ = fmt.Fprintf(out, "stopped (next template: %s)\n", st.Active)
		return nil
	}
	_, _ = fmt.Fprintf(out, "running (template: %s, pid: %d)\n", st.Helper.Template, st.Helper.PID)
	return nil
}

func (c *command) Start(ctx context.Context, out io.Writer) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	name, err := cl.Start(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "The process '%s' is started!\n", name)
	return nil
}

func (c *command) Stop(ctx context.Context, out io.Writer, f StopFlags) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	name, err := cl.Stop(ctx, f.Timeout)
	if err != nil {
		return err
	}
	if name == "" {
		_, _ = fmt.Fprintln(out, "nothing to stop")
		return nil
	}
	_, _ = fmt.Fprintf(out, "The process '%s' is stopped!\n", name)
	return nil
}

func (c *command) Templates(ctx context.Context, out io.Writer) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	ts, err := cl.Templates(ctx)
	if err != nil {
		return err
	}
	for _, n := range ts.Templates {
		name := html.UnescapeString(n)
		mark := " "
		if name == ts.Active {
			mark = "*"
		}
		_, _ = fmt.Fprintf(out, "%s %s\n", mark, name)
	}
	return nil
}

func (c *command) Use(ctx context.Context, out io.Writer, name string) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	if err := cl.SetTemplate(ctx, name); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "active template: %s\n", name)
	return nil
}

// Resolve works on the local install; it never contacts the service.
func (c *command) Resolve(out io.Writer, name string) error {
	store, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return err
	}
	cfg := store.Config()
	r := &template.Resolver{Root: cfg.InstallRoot, Dir: cfg.TemplatesDir, Ext: cfg.TemplateExt, Binary: filepath.Base(cfg.Binary)}
	args, err := r.Resolve(name)
	if err != nil {
		return err
	}
	for _, a := range args {
		_, _ = fmt.Fprintln(out, a)
	}
	return nil
}

func (c *command) History(ctx context.Context, out io.Writer, f HistoryFlags) error {
	cl, err := c.apiClient(ctx)
	if err != nil {
		return err
	}
	events, err := cl.History(ctx, f.Limit)
	if err != nil {
		return err
	}
	printJSON(out, events)
	return nil
}

func printJSON(out io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(out, string(b))
}
