// Package env composes the helper's environment from the parent process,
// dotenv files and configured overrides.
package env

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	Var  Var // overrides (K->V)
	base Var // parent environment, cached on first use
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.base = parse(os.Environ())
}

func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// SetPairs applies "K=V" entries; malformed entries are skipped.
func (e *Env) SetPairs(pairs []string) {
	for k, v := range parse(pairs) {
		e.Set(k, v)
	}
}

// LoadFile applies a dotenv file: KEY=VALUE lines, # comments, no quoting.
func (e *Env) LoadFile(path string) error {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			e.Set(strings.TrimSpace(k), strings.TrimSpace(v))
		}
	}
	return nil
}

// Overrides returns only the configured variables, ${VAR} expanded against
// the full environment, sorted by key.
func (e *Env) Overrides() []string {
	if len(e.Var) == 0 {
		return nil
	}
	if e.base == nil {
		e.FromOS()
	}
	all := make(Var, len(e.base)+len(e.Var))
	for k, v := range e.base {
		all[k] = v
	}
	for k, v := range e.Var {
		all[k] = v
	}
	out := make([]string, 0, len(e.Var))
	for k, v := range e.Var {
		out = append(out, k+"="+expand(v, all))
	}
	sort.Strings(out)
	return out
}

func parse(pairs []string) Var {
	m := make(Var, len(pairs))
	for _, kv := range pairs {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			m[k] = v
		}
	}
	return m
}

// expand performs simple ${VAR} expansion, no recursion.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
