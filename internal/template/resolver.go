package template

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	DefaultExt    = ".bat"
	DefaultBinary = "winws.exe"
)

var (
	// ErrRead reports an unreadable template file or template directory.
	ErrRead = errors.New("template read failure")
	// ErrParse reports a template without the command line marker.
	ErrParse = errors.New("template parse failure")
)

// ParseError names the template that lacks a command line.
type ParseError struct {
	Name string
}

func (e *ParseError) Error() string { return fmt.Sprintf("failed to parse template %q", e.Name) }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// declRe matches `set NAME=%~dp0..\fragment` lines. %~dp0.. is the install root.
var declRe = regexp.MustCompile(`(?m)^[ \t]*set ([\w_]+)=%~dp0\.\.\\(.+?)[ \t]*\r?$`)

// Resolver turns a template file into the helper's argument list.
type Resolver struct {
	Root   string // install root that %~dp0.. refers to
	Dir    string // directory holding the templates
	Ext    string // template extension, DefaultExt when empty
	Binary string // executable name preceding the argument list, DefaultBinary when empty
}

func (r *Resolver) ext() string {
	if r.Ext == "" {
		return DefaultExt
	}
	if !strings.HasPrefix(r.Ext, ".") {
		return "." + r.Ext
	}
	return r.Ext
}

// Marker is the substring that starts the argument list.
func (r *Resolver) Marker() string {
	bin := r.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	return bin + `" `
}

// Path returns the file backing the template name. The name is untrusted: only
// the extension is appended, anything that would leave Dir is refused.
func (r *Resolver) Path(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" || n == "." || n == ".." || strings.ContainsAny(n, `/\`) || strings.Contains(n, "..") {
		return "", fmt.Errorf("%w: invalid template name %q", ErrRead, name)
	}
	if !strings.EqualFold(filepath.Ext(n), r.ext()) {
		n += r.ext()
	}
	return filepath.Join(r.Dir, n), nil
}

// Resolve reads the named template fresh from disk and returns its arguments.
func (r *Resolver) Resolve(name string) ([]string, error) {
	path, err := r.Path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, name, err)
	}
	return r.Parse(name, string(b))
}

// Parse resolves template content without touching the filesystem.
func (r *Resolver) Parse(name, content string) ([]string, error) {
	vars := r.Vars(content)

	_, cmdline, ok := strings.Cut(content, r.Marker())
	if !ok {
		return nil, &ParseError{Name: name}
	}
	cmdline = strings.ReplaceAll(strings.TrimSpace(cmdline), `"`, "")

	fields := strings.Fields(cmdline)
	args := make([]string, 0, len(fields))
	for _, f := range fields {
		args = append(args, substitute(f, vars))
	}
	return args, nil
}

// Vars returns the declared variables keyed by their %NAME% reference.
// Later declarations of the same name win.
func (r *Resolver) Vars(content string) map[string]string {
	vars := make(map[string]string)
	for _, m := range declRe.FindAllStringSubmatch(content, -1) {
		frag := toNative(m[2])
		v := filepath.Join(r.Root, frag)
		// keep a trailing separator: templates write %LISTS%file.txt
		if strings.HasSuffix(frag, string(filepath.Separator)) {
			v += string(filepath.Separator)
		}
		vars["%"+m[1]+"%"] = v
	}
	return vars
}

func substitute(tok string, vars map[string]string) string {
	out := tok
	for k, v := range vars {
		out = strings.ReplaceAll(out, k, v)
	}
	out = strings.TrimSpace(out)
	if out != tok {
		// a path was substituted in; the rest of the token is a path suffix
		out = toNative(out)
	}
	return out
}

func toNative(p string) string {
	return filepath.FromSlash(strings.ReplaceAll(p, `\`, "/"))
}

// List returns the selectable template names without extension, sorted.
func (r *Resolver) List() ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, r.Dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), r.ext()) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// EscapedList is List with names HTML-escaped for the presentation layer.
func (r *Resolver) EscapedList() ([]string, error) {
	names, err := r.List()
	if err != nil {
		return nil, err
	}
	for i, n := range names {
		names[i] = html.EscapeString(n)
	}
	return names, nil
}
