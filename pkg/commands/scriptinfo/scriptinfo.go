// Package scriptinfo implements the commands that describe a script and
// declare its input.
package scriptinfo

import (
	"github.com/ormasoftchile/specscript/pkg/commands/interaction"
	"github.com/ormasoftchile/specscript/pkg/kernel/condition"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "script-info"

// Handlers returns the script info commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{ScriptInfo, InputParameters}
}

// Info is the object form of Script info.
type Info struct {
	Description string               `yaml:"description,omitempty" json:"description,omitempty"`
	Input       map[string]Parameter `yaml:"input,omitempty" json:"input,omitempty"`
	Hidden      bool                 `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// Parameter declares one input parameter.
type Parameter struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Condition   any    `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// ScriptInfo documents the script. It is read by tooling and has no
// effect at run time, except that an "input" field is applied like Input
// parameters.
var ScriptInfo = &engine.Handler{
	Name:    "Script info",
	Group:   group,
	Delayed: true,
	Args:    &Info{},
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return nil, nil
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		input, ok := arg.Get("input")
		if !ok {
			return nil, nil
		}
		obj, ok := input.(*node.Object)
		if !ok {
			return nil, engine.FormatError("Script info: 'input' must be an object")
		}
		return nil, populate(c, obj)
	},
}

// InputParameters binds each declared parameter as a variable: from
// ${input} when the caller passed it, else its default, else a prepared
// answer or an interactive prompt. Parameters whose condition does not
// hold are skipped. The result is the completed input object.
var InputParameters = &engine.Handler{
	Name:    "Input parameters",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		if err := populate(c, arg); err != nil {
			return nil, err
		}
		return c.Variables[engine.InputVariable], nil
	},
}

func populate(c *engine.Context, params *node.Object) error {
	input, ok := c.Variables[engine.InputVariable].(*node.Object)
	if !ok {
		input = node.NewObject()
		c.Variables[engine.InputVariable] = input
	}

	for name, raw := range params.All() {
		if v, ok := input.Get(name); ok {
			c.Variables[name] = v
			continue
		}

		def, err := c.Resolve(raw)
		if err != nil {
			return err
		}
		var p Parameter
		switch d := def.(type) {
		case *node.Object:
			desc, _ := d.Get("description")
			p.Description = node.Text(desc)
			p.Default, _ = d.Get("default")
			p.Condition, _ = d.Get("condition")
		default:
			p.Description = node.Text(d)
		}

		if p.Condition != nil {
			holds, err := condition.Eval(p.Condition, c.Variables)
			if err != nil {
				return &engine.Error{Kind: engine.KindFormat, Err: err}
			}
			if !holds {
				continue
			}
		}

		answer := p.Default
		if answer == nil {
			question := p.Description
			if question == "" {
				question = name
			}
			answer, err = interaction.Ask(c, question, nil)
			if err != nil {
				return err
			}
		}
		input.Set(name, answer)
		c.Variables[name] = answer
	}
	return nil
}
