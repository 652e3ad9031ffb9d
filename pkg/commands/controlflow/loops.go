package controlflow

import (
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/resolve"
)

// defaultLoopVariable is bound when For each iterates over the output.
const defaultLoopVariable = "item"

// ForEach runs its body once per element. The loop variable and list come
// from a "${var} in: list" field; without one, the current output is
// iterated and bound to ${item}. Objects iterate as {key, value} pairs.
// The result is the list of non-nil body results.
var ForEach = &engine.Handler{
	Name:    "For each",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		varName := defaultLoopVariable
		var items any = c.Output()
		body := arg

		for k, v := range arg.All() {
			name, ok := loopVariable(k)
			if !ok {
				continue
			}
			resolved, err := c.Resolve(v)
			if err != nil {
				return nil, err
			}
			varName, items = name, resolved
			body = arg.Without(k)
			break
		}
		if body.Len() == 0 {
			return nil, engine.FormatError("For each: missing loop body")
		}

		var results []any
		for _, item := range elements(items) {
			if err := c.Context().Err(); err != nil {
				return nil, engine.InternalError(err, "For each cancelled")
			}
			c.Variables[varName] = item
			out, err := engine.RunNode(body, c)
			if err != nil {
				return nil, err
			}
			if out != nil {
				results = append(results, out)
			}
		}
		if results == nil {
			results = []any{}
		}
		return results, nil
	},
}

func loopVariable(key string) (string, bool) {
	ref, ok := strings.CutSuffix(key, " in")
	if !ok {
		return "", false
	}
	return resolve.Reference(strings.TrimSpace(ref))
}

func elements(items any) []any {
	switch v := items.(type) {
	case nil:
		return nil
	case []any:
		return v
	case *node.Object:
		out := make([]any, 0, v.Len())
		for k, val := range v.All() {
			out = append(out, node.ObjectOf("key", k, "value", val))
		}
		return out
	default:
		return []any{v}
	}
}

// Repeat runs its body until the "until" condition holds. The condition is
// resolved after every iteration, so it can refer to the body's output.
var Repeat = &engine.Handler{
	Name:    "Repeat",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		until, ok := arg.Get("until")
		if !ok {
			return nil, engine.FormatError("Repeat: expected field 'until'")
		}
		body := arg.Without("until")

		var last any
		for {
			if err := c.Context().Err(); err != nil {
				return nil, engine.InternalError(err, "Repeat cancelled")
			}
			out, err := engine.RunNode(body, c)
			if err != nil {
				return nil, err
			}
			if out != nil {
				last = out
			}
			done, err := evalCondition(c, until)
			if err != nil {
				return nil, err
			}
			if done {
				return last, nil
			}
		}
	},
}
