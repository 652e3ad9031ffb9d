package engine

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/specscript/pkg/kernel/resolve"
	"github.com/ormasoftchile/specscript/pkg/kernel/trace"
)

// Reserved variable names.
const (
	// OutputVariable holds the result of the most recent command that
	// returned a value.
	OutputVariable = "output"
	// InputVariable holds the declared input of the current invocation.
	InputVariable = "input"
	// ErrorVariable holds the pending error while an error handler runs.
	ErrorVariable = "error"
)

// Context is the mutable state threaded through one script run. Nested
// runs that receive the same Context share its variables and session.
// A Context is not safe for concurrent use; independent runs need their
// own Context (see Clone).
type Context struct {
	Variables map[string]any
	// Error is the sticky error. While set, only error-handler commands run.
	Error *CommandError

	Session     *Session
	Interactive bool

	WorkingDir string
	ScriptDir  string
	ScriptFile string

	// Registry holds the static command library.
	Registry *Registry
	// Local provides dynamic commands resolved by the calling context,
	// consulted after Registry.
	Local CommandSource

	Stdout io.Writer
	Trace  *trace.Writer

	ctx context.Context
}

// NewContext returns a context with empty variables and a fresh session.
func NewContext(registry *Registry) *Context {
	wd, _ := os.Getwd()
	return &Context{
		Variables:  make(map[string]any),
		Session:    NewSession(),
		Registry:   registry,
		WorkingDir: wd,
		ScriptDir:  wd,
		Stdout:     os.Stdout,
		ctx:        context.Background(),
	}
}

// Context returns the Go context used to cancel blocking collaborators.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// WithContext sets the Go context and returns c.
func (c *Context) WithContext(ctx context.Context) *Context {
	c.ctx = ctx
	return c
}

// Output returns the implicit output of the last command.
func (c *Context) Output() any {
	return c.Variables[OutputVariable]
}

// SetOutput sets the implicit output.
func (c *Context) SetOutput(v any) {
	c.Variables[OutputVariable] = v
}

// Resolve resolves variable references in n against the context variables.
// Unresolved references become fatal KindUnresolved errors.
func (c *Context) Resolve(n any) (any, error) {
	out, err := resolve.Resolve(n, c.Variables)
	if err != nil {
		return nil, &Error{Kind: KindUnresolved, Err: err}
	}
	return out, nil
}

// Name identifies the context in error reports.
func (c *Context) Name() string {
	if c.ScriptFile != "" {
		return filepath.Base(c.ScriptFile)
	}
	return ""
}

// Handler resolves a command name: the ${var} assignment syntax first,
// then the static registry, then the local command source.
func (c *Context) Handler(name string) (*Handler, error) {
	if varName, ok := resolve.Reference(name); ok {
		return assignHandler(varName), nil
	}
	if h, ok := c.Registry.Lookup(name); ok {
		return h, nil
	}
	if c.Local != nil {
		if h, ok := c.Local.Handler(name); ok {
			return h, nil
		}
	}
	return nil, &Error{Kind: KindUnknownCommand, Message: fmt.Sprintf("unknown command: %s", name)}
}

// Clone returns a context with shallow copies of the variables and the
// session, for runs that must not affect the caller.
func (c *Context) Clone() *Context {
	out := *c
	out.Variables = maps.Clone(c.Variables)
	if out.Variables == nil {
		out.Variables = make(map[string]any)
	}
	out.Session = c.Session.Clone()
	out.Error = nil
	return &out
}

// Child returns a context for invoking another script file: fresh
// variables, shared session, same library, output streams and trace.
func (c *Context) Child(scriptFile string, vars map[string]any) *Context {
	if vars == nil {
		vars = make(map[string]any)
	}
	out := &Context{
		Variables:   vars,
		Session:     c.Session,
		Interactive: c.Interactive,
		WorkingDir:  c.WorkingDir,
		ScriptFile:  scriptFile,
		ScriptDir:   filepath.Dir(scriptFile),
		Registry:    c.Registry,
		Stdout:      c.Stdout,
		Trace:       c.Trace,
		ctx:         c.ctx,
	}
	return out
}

// TempDir returns the session's temporary directory, creating it on first
// use. The directory is shared by all contexts of the session.
func (c *Context) TempDir() (string, error) {
	if dir, ok := SessionValue[string](c.Session, KeyScriptTempDir); ok {
		return dir, nil
	}
	dir, err := os.MkdirTemp("", "specscript-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	c.Session.Set(KeyScriptTempDir, dir)
	return dir, nil
}
