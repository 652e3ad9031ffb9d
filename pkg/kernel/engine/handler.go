package engine

import (
	"fmt"
	"sort"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// ScalarFunc executes a command whose argument is a scalar.
type ScalarFunc func(c *Context, arg any) (any, error)

// ObjectFunc executes a command whose argument is an object.
type ObjectFunc func(c *Context, arg *node.Object) (any, error)

// ArrayFunc executes a command whose argument is an array.
type ArrayFunc func(c *Context, arg []any) (any, error)

// AnyFunc executes a command with an argument of any shape.
type AnyFunc func(c *Context, arg any) (any, error)

// Handler describes a command: which argument shapes it accepts and how
// the dispatcher must treat it. Set only the shape functions the command
// supports. Handlers are stateless; per-run state lives in the Context and
// cross-run state in the Session.
type Handler struct {
	Name  string
	Group string

	Scalar ScalarFunc
	Object ObjectFunc
	Array  ArrayFunc
	Any    AnyFunc

	// Delayed handlers receive their argument unresolved and resolve the
	// parts they need themselves.
	Delayed bool
	// ErrorHandler handlers still run while a sticky error is pending.
	ErrorHandler bool

	// Args optionally points to a zero value of the struct describing the
	// object argument. It feeds JSON Schema export only.
	Args any
}

// Accepts reports whether the handler declares the given argument shape,
// either directly or through Any.
func (h *Handler) Accepts(k node.Kind) bool {
	if h.Any != nil {
		return true
	}
	switch k {
	case node.KindScalar:
		return h.Scalar != nil
	case node.KindObject:
		return h.Object != nil
	case node.KindArray:
		return h.Array != nil
	}
	return false
}

// CommandSource provides handlers that are not part of the static library,
// such as scripts discovered next to the running script.
type CommandSource interface {
	Handler(name string) (*Handler, bool)
}

// Registry maps command names to handlers.
type Registry struct {
	handlers map[string]*Handler
}

// NewRegistry returns a registry holding the given handlers.
func NewRegistry(handlers ...*Handler) *Registry {
	r := &Registry{handlers: make(map[string]*Handler)}
	r.Register(handlers...)
	return r
}

// Register adds handlers. Registering a name twice is a programming error
// and panics.
func (r *Registry) Register(handlers ...*Handler) {
	for _, h := range handlers {
		if h.Scalar == nil && h.Object == nil && h.Array == nil && h.Any == nil {
			panic(fmt.Sprintf("engine: handler %q accepts no argument shape", h.Name))
		}
		if _, dup := r.handlers[h.Name]; dup {
			panic(fmt.Sprintf("engine: handler %q registered twice", h.Name))
		}
		r.handlers[h.Name] = h
	}
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (*Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[name]
	return h, ok
}

// Handler implements CommandSource.
func (r *Registry) Handler(name string) (*Handler, bool) {
	return r.Lookup(name)
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handlers returns all handlers sorted by group, then name.
func (r *Registry) Handlers() []*Handler {
	out := make([]*Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// assignHandler stores its resolved argument into a variable. The engine
// returns it for command names of the form ${name}.
func assignHandler(varName string) *Handler {
	return &Handler{
		Name:  "${}",
		Group: "core/variables",
		Any: func(c *Context, arg any) (any, error) {
			c.Variables[varName] = arg
			return nil, nil
		},
	}
}
