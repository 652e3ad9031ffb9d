// Package schema implements the Validate schema command.
package schema

import (
	"path/filepath"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	kschema "github.com/ormasoftchile/specscript/pkg/kernel/schema"
)

const group = "schema"

// ErrorType tags command errors raised for invalid documents.
const ErrorType = "validation"

// Handlers returns the schema commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{ValidateSchema}
}

// Options is the argument of Validate schema. Schema is either an inline
// JSON Schema or the path of a YAML/JSON schema file.
type Options struct {
	Schema any `yaml:"schema" json:"schema" jsonschema:"required"`
	Data   any `yaml:"data,omitempty" json:"data,omitempty" jsonschema:"description=Document to validate; defaults to the current output"`
}

// ValidateSchema validates data (or the current output) against a JSON
// Schema. It raises a "validation" command error whose data lists the
// violations as {path, message}; on success it returns the data.
var ValidateSchema = &engine.Handler{
	Name:  "Validate schema",
	Group: group,
	Args:  &Options{},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		schemaDoc, ok := arg.Get("schema")
		if !ok {
			return nil, engine.FormatError("Validate schema: expected field 'schema'")
		}
		if path, ok := schemaDoc.(string); ok {
			if !filepath.IsAbs(path) {
				path = filepath.Join(c.ScriptDir, path)
			}
			doc, err := node.ReadFile(path)
			if err != nil {
				return nil, engine.FormatError("Validate schema: %v", err)
			}
			schemaDoc = doc
		}
		data, ok := arg.Get("data")
		if !ok {
			data = c.Output()
		}

		compiled, err := kschema.Compile(schemaDoc)
		if err != nil {
			return nil, engine.FormatError("Validate schema: %v", err)
		}
		violations, err := compiled.Validate(data)
		if err != nil {
			return nil, engine.InternalError(err, "Validate schema")
		}
		if len(violations) > 0 {
			list := make([]any, len(violations))
			for i, v := range violations {
				list[i] = v.Node()
			}
			return nil, engine.TypedError(ErrorType, list, "%s", violations[0].String())
		}
		return data, nil
	},
}
