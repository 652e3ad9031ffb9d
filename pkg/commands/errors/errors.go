// Package errors implements the commands that raise and handle command
// errors.
package errors

import (
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "core/errors"

// AnyType is the On error type key that matches every error.
const AnyType = "any"

// Handlers returns the error commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Error, OnError, OnErrorType}
}

// Data is the object form of the Error command and the shape of ${error}.
type Data struct {
	Type    string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"description=Error type tag matched by On error type"`
	Message string `yaml:"message" json:"message" jsonschema:"required"`
	Data    any    `yaml:"data,omitempty" json:"data,omitempty"`
}

// Error raises a command error.
var Error = &engine.Handler{
	Name:  "Error",
	Group: group,
	Args:  &Data{},
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return nil, &engine.CommandError{Type: engine.DefaultErrorType, Message: node.Display(arg)}
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		msg, ok := arg.Get("message")
		if !ok {
			return nil, engine.FormatError("Error: expected field 'message'")
		}
		errType := engine.DefaultErrorType
		if t, ok := arg.Get("type"); ok {
			errType = node.Text(t)
		}
		data, _ := arg.Get("data")
		return nil, &engine.CommandError{Type: errType, Message: node.Display(msg), Data: data}
	},
	// The list default would raise only the first error; reject lists.
	Array: func(c *engine.Context, arg []any) (any, error) {
		return nil, engine.FormatError("Error does not support lists")
	},
}

// OnError handles a pending error: it binds ${error}, clears the sticky
// error, runs its body and removes ${error} again. Without a pending error
// it does nothing.
var OnError = &engine.Handler{
	Name:         "On error",
	Group:        group,
	Delayed:      true,
	ErrorHandler: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		return nil, handle(c, arg)
	},
}

// OnErrorType handles a pending error with the body of the first key that
// equals the error type or is "any".
var OnErrorType = &engine.Handler{
	Name:         "On error type",
	Group:        group,
	Delayed:      true,
	ErrorHandler: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		if c.Error == nil {
			return nil, nil
		}
		for key, body := range arg.All() {
			if key == AnyType || key == c.Error.Type {
				return nil, handle(c, body)
			}
		}
		return nil, nil
	},
}

func handle(c *engine.Context, body any) error {
	pending := c.Error
	if pending == nil {
		return nil
	}
	c.Variables[engine.ErrorVariable] = pending.Node()
	c.Error = nil

	_, err := engine.RunNode(body, c)

	delete(c.Variables, engine.ErrorVariable)
	return err
}
