// Package variables implements the commands that move values between the
// implicit output and named variables.
package variables

import (
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/resolve"
)

const group = "core/variables"

// Handlers returns the variable commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{As, Output}
}

// As stores the current output in the named variable. The argument is the
// raw ${name} reference, so it is taken unresolved.
var As = &engine.Handler{
	Name:    "As",
	Group:   group,
	Delayed: true,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		ref, ok := arg.(string)
		if !ok {
			return nil, engine.FormatError("As: expected a variable reference like ${name}, got %s", node.Text(arg))
		}
		name, ok := resolve.Reference(ref)
		if !ok {
			return nil, engine.FormatError("As: expected a variable reference like ${name}, got %s", ref)
		}
		c.Variables[name] = c.Output()
		return nil, nil
	},
}

// Output makes its argument the current output.
var Output = &engine.Handler{
	Name:  "Output",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		return arg, nil
	},
}
