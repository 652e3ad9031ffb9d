package engine

import (
	"errors"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// Dispatch executes one command through its handler. Unless the handler is
// Delayed, the argument is resolved against the context variables first.
//
// Overload selection: the shape-specific function, then Any. An array
// argument for a handler without Array or Any runs the handler once per
// element and collects the non-nil results. Any other mismatch is a format
// error.
func Dispatch(h *Handler, arg any, c *Context) (any, error) {
	if !h.Delayed {
		resolved, err := c.Resolve(arg)
		if err != nil {
			return nil, err
		}
		arg = resolved
	}
	out, err := execute(h, arg, c)
	if err != nil {
		return nil, classify(h, err)
	}
	return out, nil
}

func execute(h *Handler, arg any, c *Context) (any, error) {
	switch v := arg.(type) {
	case *node.Object:
		if h.Object != nil {
			return h.Object(c, v)
		}
	case []any:
		if h.Array != nil {
			return h.Array(c, v)
		}
	default:
		if h.Scalar != nil {
			return h.Scalar(c, v)
		}
	}

	if h.Any != nil {
		return h.Any(c, arg)
	}

	if list, ok := arg.([]any); ok {
		return executeEach(h, list, c)
	}

	return nil, FormatError("%s does not accept %s arguments", h.Name, node.KindOf(arg))
}

// executeEach is the list default: one execution per element.
func executeEach(h *Handler, list []any, c *Context) (any, error) {
	var results []any
	for _, item := range list {
		out, err := execute(h, item, c)
		if err != nil {
			return nil, err
		}
		if out != nil {
			results = append(results, out)
		}
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results, nil
}

// classify leaves engine errors and command errors alone and wraps
// anything else as an internal error.
func classify(h *Handler, err error) error {
	var (
		se *Error
		ce *CommandError
		ex *Exit
	)
	switch {
	case errors.As(err, &ex), errors.As(err, &ce), errors.As(err, &se):
		return err
	default:
		return InternalError(err, "%s failed", h.Name)
	}
}
