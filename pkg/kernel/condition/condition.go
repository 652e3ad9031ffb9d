// Package condition evaluates the boolean conditions used by branching,
// looping and assertion commands.
//
// A condition is an object in one of these forms:
//
//	item: X, equals: Y      deep equality
//	item: X, in: Y          Y is an array holding X, an object with key X,
//	                        or a string containing X
//	empty: X                X is null, "", [] or {}
//	all: [cond, ...]        every condition holds
//	any: [cond, ...]        at least one condition holds
//	not: cond               negation
//	expression: "a > 1"     expr-lang expression over the variables
package condition

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// ErrInvalid is wrapped by every malformed-condition error.
var ErrInvalid = errors.New("invalid condition")

// Condition is a parsed, evaluable condition.
type Condition interface {
	Eval(vars map[string]any) (bool, error)
}

// Parse builds a condition from a resolved node.
func Parse(n any) (Condition, error) {
	obj, ok := n.(*node.Object)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrInvalid, node.KindOf(n))
	}

	keys := obj.Keys()
	sort.Strings(keys)
	switch strings.Join(keys, ",") {
	case "equals,item":
		item, _ := obj.Get("item")
		want, _ := obj.Get("equals")
		return equals{item: item, want: want}, nil
	case "in,item":
		item, _ := obj.Get("item")
		in, _ := obj.Get("in")
		return contains{item: item, in: in}, nil
	case "empty":
		v, _ := obj.Get("empty")
		return empty{v: v}, nil
	case "all", "any":
		v, _ := obj.Get(keys[0])
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a list", ErrInvalid, keys[0])
		}
		conds := make([]Condition, 0, len(list))
		for _, item := range list {
			c, err := Parse(item)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		return group{all: keys[0] == "all", conds: conds}, nil
	case "not":
		v, _ := obj.Get("not")
		c, err := Parse(v)
		if err != nil {
			return nil, err
		}
		return not{c: c}, nil
	case "expression":
		v, _ := obj.Get("expression")
		src, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expression must be a string", ErrInvalid)
		}
		return expression{src: src}, nil
	}
	return nil, fmt.Errorf("%w: unrecognised fields %v", ErrInvalid, obj.Keys())
}

// Eval parses and evaluates n in one step.
func Eval(n any, vars map[string]any) (bool, error) {
	c, err := Parse(n)
	if err != nil {
		return false, err
	}
	return c.Eval(vars)
}

type equals struct{ item, want any }

func (c equals) Eval(map[string]any) (bool, error) {
	return node.Equal(c.item, c.want), nil
}

type contains struct{ item, in any }

func (c contains) Eval(map[string]any) (bool, error) {
	switch v := c.in.(type) {
	case []any:
		for _, x := range v {
			if node.Equal(x, c.item) {
				return true, nil
			}
		}
		return false, nil
	case *node.Object:
		key, ok := c.item.(string)
		return ok && v.Has(key), nil
	case string:
		return strings.Contains(v, node.Text(c.item)), nil
	}
	return false, fmt.Errorf("%w: cannot test membership in %s", ErrInvalid, node.KindOf(c.in))
}

type empty struct{ v any }

func (c empty) Eval(map[string]any) (bool, error) {
	switch v := c.v.(type) {
	case nil:
		return true, nil
	case string:
		return v == "", nil
	case []any:
		return len(v) == 0, nil
	case *node.Object:
		return v.Len() == 0, nil
	}
	return false, nil
}

type group struct {
	all   bool
	conds []Condition
}

func (c group) Eval(vars map[string]any) (bool, error) {
	for _, sub := range c.conds {
		ok, err := sub.Eval(vars)
		if err != nil {
			return false, err
		}
		if c.all && !ok {
			return false, nil
		}
		if !c.all && ok {
			return true, nil
		}
	}
	return c.all, nil
}

type not struct{ c Condition }

func (c not) Eval(vars map[string]any) (bool, error) {
	ok, err := c.c.Eval(vars)
	return !ok, err
}

type expression struct{ src string }

func (c expression) Eval(vars map[string]any) (bool, error) {
	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[k] = plain(v)
	}
	program, err := expr.Compile(c.src, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("%w: compile expression %q: %v", ErrInvalid, c.src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("%w: evaluate expression %q: %v", ErrInvalid, c.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression %q did not return a boolean", ErrInvalid, c.src)
	}
	return b, nil
}

// plain converts ordered objects into Go maps so expressions can use
// member access on them.
func plain(n any) any {
	switch v := n.(type) {
	case *node.Object:
		m := make(map[string]any, v.Len())
		for k, val := range v.All() {
			m[k] = plain(val)
		}
		return m
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
