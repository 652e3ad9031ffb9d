// Package util implements printing, conversion and timing commands.
package util

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "util"

// Handlers returns the utility commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Print, PrintJSON, ToJSON, ParseYAML, Base64Encode, Base64Decode, Wait}
}

// Print writes its argument to the console, scalars as text and
// containers as YAML. An array argument is printed as one document.
var Print = &engine.Handler{
	Name:  "Print",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		if _, err := fmt.Fprintln(c.Stdout, node.Display(arg)); err != nil {
			return nil, engine.InternalError(err, "write console")
		}
		return nil, nil
	},
}

// PrintJSON writes its argument to the console as indented JSON.
var PrintJSON = &engine.Handler{
	Name:  "Print JSON",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		data, err := node.JSON(arg, true)
		if err != nil {
			return nil, engine.InternalError(err, "encode json")
		}
		if _, err := fmt.Fprintln(c.Stdout, string(data)); err != nil {
			return nil, engine.InternalError(err, "write console")
		}
		return nil, nil
	},
}

// ToJSON returns its argument encoded as a compact JSON string.
var ToJSON = &engine.Handler{
	Name:  "To JSON",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		data, err := node.JSON(arg, false)
		if err != nil {
			return nil, engine.InternalError(err, "encode json")
		}
		return string(data), nil
	},
}

// ParseYAML parses a YAML (or JSON) string into a node.
var ParseYAML = &engine.Handler{
	Name:  "Parse YAML",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		out, err := node.Parse(node.Text(arg))
		if err != nil {
			return nil, &engine.CommandError{Type: "yaml", Message: err.Error(), Err: err}
		}
		return out, nil
	},
}

// Base64Encode encodes text with standard base64.
var Base64Encode = &engine.Handler{
	Name:  "Base64 encode",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return base64.StdEncoding.EncodeToString([]byte(node.Text(arg))), nil
	},
}

// Base64Decode decodes standard base64 into text.
var Base64Decode = &engine.Handler{
	Name:  "Base64 decode",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		data, err := base64.StdEncoding.DecodeString(node.Text(arg))
		if err != nil {
			return nil, &engine.CommandError{Type: "base64", Message: err.Error(), Err: err}
		}
		return string(data), nil
	},
}

// Wait pauses for the given number of seconds.
var Wait = &engine.Handler{
	Name:  "Wait",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		secs, ok := node.Number(arg)
		if !ok || secs < 0 {
			return nil, engine.FormatError("Wait: expected a non-negative number of seconds, got %s", node.Text(arg))
		}
		timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, nil
		case <-c.Context().Done():
			return nil, engine.InternalError(c.Context().Err(), "Wait cancelled")
		}
	},
}
