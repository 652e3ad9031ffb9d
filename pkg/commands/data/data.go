// Package data implements commands that combine and inspect lists and
// objects.
package data

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/resolve"
)

const group = "data"

// Handlers returns the data commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Add, AddTo, Append, Find, Size, Fields, Values, Sort, JSONPatch}
}

// Add sums a list. The first element decides the operation: numbers add,
// strings concatenate, arrays concatenate and objects merge.
var Add = &engine.Handler{
	Name:  "Add",
	Group: group,
	Array: func(c *engine.Context, arg []any) (any, error) {
		return sum(arg)
	},
}

// AddTo adds values to variables: each key is a ${name} reference whose
// current value is summed with the field value.
var AddTo = &engine.Handler{
	Name:  "Add to",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		for key, value := range arg.All() {
			name, ok := resolve.Reference(key)
			if !ok {
				return nil, engine.FormatError("Add to: keys must be variable references like ${name}, got %s", key)
			}
			current, ok := c.Variables[name]
			if !ok {
				return nil, engine.FormatError("Add to: variable %s is not defined", name)
			}
			total, err := sum([]any{current, value})
			if err != nil {
				return nil, err
			}
			c.Variables[name] = total
		}
		return nil, nil
	},
}

// Append adds its argument to the current output. Arrays are concatenated
// and objects are merged.
var Append = &engine.Handler{
	Name:  "Append",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		switch out := c.Output().(type) {
		case nil:
			if list, ok := arg.([]any); ok {
				return slices.Clone(list), nil
			}
			return []any{arg}, nil
		case []any:
			result := slices.Clone(out)
			if list, ok := arg.([]any); ok {
				return append(result, list...), nil
			}
			return append(result, arg), nil
		case *node.Object:
			add, ok := arg.(*node.Object)
			if !ok {
				return nil, engine.FormatError("Append: cannot append %s to an object", node.KindOf(arg))
			}
			return merge(out, add), nil
		default:
			return sum([]any{out, arg})
		}
	},
}

// Find selects a value by path, such as "users[0].name", from the "in"
// field. A missing value yields nil.
var Find = &engine.Handler{
	Name:  "Find",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		p, ok := arg.Get("path")
		if !ok {
			return nil, engine.FormatError("Find: expected field 'path'")
		}
		in, ok := arg.Get("in")
		if !ok {
			return nil, engine.FormatError("Find: expected field 'in'")
		}
		path := strings.TrimPrefix(node.Text(p), ".")
		if path == "" {
			return in, nil
		}
		if !strings.HasPrefix(path, "[") {
			path = "." + path
		}
		v, err := resolve.Lookup("in"+path, map[string]any{"in": in})
		if err != nil {
			return nil, nil
		}
		return v, nil
	},
}

func sum(items []any) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	switch first := items[0].(type) {
	case int, float64:
		return sumNumbers(items)
	case string:
		var b strings.Builder
		for _, item := range items {
			if node.KindOf(item) != node.KindScalar {
				return nil, engine.FormatError("Add: cannot add %s to text", node.KindOf(item))
			}
			b.WriteString(node.Text(item))
		}
		return b.String(), nil
	case []any:
		out := slices.Clone(first)
		for _, item := range items[1:] {
			if list, ok := item.([]any); ok {
				out = append(out, list...)
			} else {
				out = append(out, item)
			}
		}
		return out, nil
	case *node.Object:
		out := node.Clone(first).(*node.Object)
		for _, item := range items[1:] {
			obj, ok := item.(*node.Object)
			if !ok {
				return nil, engine.FormatError("Add: cannot add %s to an object", node.KindOf(item))
			}
			out = merge(out, obj)
		}
		return out, nil
	default:
		return nil, engine.FormatError("Add: cannot add %s values", node.KindOf(first))
	}
}

func sumNumbers(items []any) (any, error) {
	intSum, floatSum, isFloat := 0, 0.0, false
	for _, item := range items {
		switch v := item.(type) {
		case int:
			intSum += v
		case float64:
			floatSum += v
			isFloat = true
		default:
			return nil, engine.FormatError("Add: cannot add %s to a number", node.Text(item))
		}
	}
	if isFloat {
		return floatSum + float64(intSum), nil
	}
	return intSum, nil
}

func merge(base, add *node.Object) *node.Object {
	out := node.Clone(base).(*node.Object)
	for k, v := range add.All() {
		out.Set(k, v)
	}
	return out
}

// target is the node a Size, Fields or Values command inspects: the
// argument, or the current output when the argument is empty.
func target(c *engine.Context, arg any) any {
	if arg == nil || arg == "" {
		return c.Output()
	}
	return arg
}

// Size returns the number of elements of a list or object, or the number
// of characters of a text.
var Size = &engine.Handler{
	Name:  "Size",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		switch v := target(c, arg).(type) {
		case nil:
			return 0, nil
		case []any:
			return len(v), nil
		case *node.Object:
			return v.Len(), nil
		case string:
			return utf8.RuneCountInString(v), nil
		default:
			return nil, engine.FormatError("Size: cannot measure %s", node.Text(v))
		}
	},
}

// Fields returns the keys of an object.
var Fields = &engine.Handler{
	Name:  "Fields",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		obj, ok := target(c, arg).(*node.Object)
		if !ok {
			return nil, engine.FormatError("Fields: expected an object")
		}
		keys := obj.Keys()
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	},
}

// Values returns the values of an object.
var Values = &engine.Handler{
	Name:  "Values",
	Group: group,
	Any: func(c *engine.Context, arg any) (any, error) {
		obj, ok := target(c, arg).(*node.Object)
		if !ok {
			return nil, engine.FormatError("Values: expected an object")
		}
		out := make([]any, 0, obj.Len())
		for _, v := range obj.All() {
			out = append(out, v)
		}
		return out, nil
	},
}

// Sort sorts a list. The object form {items, by} sorts objects by a field.
var Sort = &engine.Handler{
	Name:  "Sort",
	Group: group,
	Array: func(c *engine.Context, arg []any) (any, error) {
		out := slices.Clone(arg)
		slices.SortStableFunc(out, compare)
		return out, nil
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		raw, ok := arg.Get("items")
		if !ok {
			raw = c.Output()
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, engine.FormatError("Sort: expected a list of items")
		}
		by, hasBy := arg.Get("by")
		field := node.Text(by)
		out := slices.Clone(items)
		slices.SortStableFunc(out, func(a, b any) int {
			if !hasBy {
				return compare(a, b)
			}
			return compare(fieldOf(a, field), fieldOf(b, field))
		})
		return out, nil
	},
}

func fieldOf(n any, field string) any {
	obj, ok := n.(*node.Object)
	if !ok {
		return nil
	}
	v, _ := obj.Get(field)
	return v
}

// compare orders numbers numerically and everything else by text.
func compare(a, b any) int {
	af, aok := node.Number(a)
	bf, bok := node.Number(b)
	if aok && bok {
		return cmp.Compare(af, bf)
	}
	return strings.Compare(node.Text(a), node.Text(b))
}
