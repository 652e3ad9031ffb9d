// Package schema generates JSON Schemas for scripts and command arguments
// and validates documents against JSON Schemas.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// ScriptSchemaID identifies the generated script schema.
const ScriptSchemaID = "https://github.com/ormasoftchile/specscript/schemas/script.json"

// Violation is one schema validation failure.
type Violation struct {
	Path    string `json:"path"` // slash-separated instance location, "" for the root
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Node returns the violation as a document node.
func (v Violation) Node() *node.Object {
	return node.ObjectOf("path", v.Path, "message", v.Message)
}

// Reflect returns the inline JSON Schema of a Go argument struct.
func Reflect(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(v)
	s.Version = ""
	s.ID = ""
	return s
}

// ScriptSchema builds the schema of a script document for the given
// commands: an object (or list of objects) whose keys are command names or
// ${variable} assignments. Commands with Args get their argument schema;
// the others accept anything.
func ScriptSchema(handlers []*engine.Handler) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	for _, h := range handlers {
		arg := jsonschema.TrueSchema
		if h.Args != nil {
			arg = Reflect(h.Args)
			if h.Accepts(node.KindScalar) || h.Accepts(node.KindArray) {
				arg = &jsonschema.Schema{AnyOf: []*jsonschema.Schema{arg, {Not: &jsonschema.Schema{Type: "object"}}}}
			}
		}
		props.Set(h.Name, arg)
	}

	command := &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		PatternProperties: map[string]*jsonschema.Schema{
			`^\$\{[^}]+\}$`: jsonschema.TrueSchema,
		},
		AdditionalProperties: jsonschema.FalseSchema,
	}
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          ScriptSchemaID,
		Title:       "SpecScript script",
		Description: "A script is an object, or a list of objects, whose keys are commands.",
		OneOf: []*jsonschema.Schema{
			command,
			{Type: "array", Items: command},
		},
	}
}

// Marshal renders a schema as indented JSON.
func Marshal(s *jsonschema.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// Compiled is a JSON Schema ready for validation.
type Compiled struct {
	schema *sjsonschema.Schema
}

// Compile compiles a schema given as a document node.
func Compile(schemaDoc any) (*Compiled, error) {
	doc, err := toJSONValue(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Compiled{schema: sch}, nil
}

// Validate checks a document node. It returns the leaf violations, or
// nil when the document is valid.
func (c *Compiled) Validate(doc any) ([]Violation, error) {
	val, err := toJSONValue(doc)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	err = c.schema.Validate(val)
	if err == nil {
		return nil, nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return nil, err
	}
	var out []Violation
	for _, cause := range flattenValidationErrors(ve) {
		out = append(out, Violation{
			Path:    strings.Join(cause.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return out, nil
}

// Validate compiles schemaDoc and validates doc against it.
func Validate(schemaDoc, doc any) ([]Violation, error) {
	c, err := Compile(schemaDoc)
	if err != nil {
		return nil, err
	}
	return c.Validate(doc)
}

// ValidateScript validates script documents against the schema of the
// given commands.
func ValidateScript(handlers []*engine.Handler, docs []any) ([]Violation, error) {
	data, err := Marshal(ScriptSchema(handlers))
	if err != nil {
		return nil, err
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("script schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource(ScriptSchemaID, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(ScriptSchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	compiled := &Compiled{schema: sch}

	var out []Violation
	for i, doc := range docs {
		vs, err := compiled.Validate(doc)
		if err != nil {
			return nil, err
		}
		for _, v := range vs {
			if len(docs) > 1 {
				v.Path = strings.TrimSuffix(fmt.Sprintf("document %d/%s", i+1, v.Path), "/")
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// toJSONValue converts a node into the JSON value model of the validator.
func toJSONValue(n any) (any, error) {
	data, err := node.JSON(n, false)
	if err != nil {
		return nil, err
	}
	return sjsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
