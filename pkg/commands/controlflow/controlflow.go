// Package controlflow implements the branching, looping and exit commands.
// All of them except Exit resolve their arguments lazily, because a body
// must not be resolved or executed before it is selected.
package controlflow

import (
	"github.com/ormasoftchile/specscript/pkg/kernel/condition"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "core/control-flow"

// Handlers returns the control-flow commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Do, If, When, Exit, ForEach, Repeat}
}

// Do runs its argument, an object or a list of objects, as a nested
// segment of the current script.
var Do = &engine.Handler{
	Name:    "Do",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		return engine.RunNode(arg, c)
	},
	Array: func(c *engine.Context, arg []any) (any, error) {
		return engine.RunNode(arg, c)
	},
}

// If evaluates the condition formed by all fields except then/else and runs
// only the selected branch.
var If = &engine.Handler{
	Name:    "If",
	Group:   group,
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		branch, ok, err := selectBranch(c, arg)
		if err != nil || !ok {
			return nil, err
		}
		return engine.RunNode(branch, c)
	},
}

// selectBranch returns the branch chosen by an If-style object. ok is false
// when the condition fails and there is no else branch.
func selectBranch(c *engine.Context, arg *node.Object) (any, bool, error) {
	thenBranch, ok := arg.Get("then")
	if !ok {
		return nil, false, engine.FormatError("If: expected field 'then'")
	}
	elseBranch, hasElse := arg.Get("else")

	holds, err := evalCondition(c, arg.Without("then", "else"))
	if err != nil {
		return nil, false, err
	}
	if holds {
		return thenBranch, true, nil
	}
	return elseBranch, hasElse, nil
}

// evalCondition resolves a condition node and evaluates it.
func evalCondition(c *engine.Context, raw any) (bool, error) {
	resolved, err := c.Resolve(raw)
	if err != nil {
		return false, err
	}
	cond, err := condition.Parse(resolved)
	if err != nil {
		return false, &engine.Error{Kind: engine.KindFormat, Err: err}
	}
	holds, err := cond.Eval(c.Variables)
	if err != nil {
		return false, &engine.Error{Kind: engine.KindFormat, Err: err}
	}
	return holds, nil
}

// When runs the first branch whose condition holds. A branch {else: ...}
// always matches.
var When = &engine.Handler{
	Name:    "When",
	Group:   group,
	Delayed: true,
	Array: func(c *engine.Context, arg []any) (any, error) {
		for _, item := range arg {
			obj, ok := item.(*node.Object)
			if !ok {
				return nil, engine.FormatError("When: branches must be objects")
			}
			if body, ok := obj.Get("else"); ok && obj.Len() == 1 {
				return engine.RunNode(body, c)
			}
			branch, ok, err := selectBranch(c, obj.Without("else"))
			if err != nil {
				return nil, err
			}
			if ok {
				return engine.RunNode(branch, c)
			}
		}
		return nil, nil
	},
}

// Exit ends the script with its argument as the result, unwinding all
// nested segments up to the script boundary.
var Exit = &engine.Handler{
	Name:  "Exit",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		return nil, &engine.Exit{Value: arg}
	},
}
