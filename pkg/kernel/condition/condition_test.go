package condition

import (
	"errors"
	"testing"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		cond any
		want bool
	}{
		{"equals true", node.ObjectOf("item", 1, "equals", 1), true},
		{"equals false", node.ObjectOf("item", 1, "equals", 2), false},
		{"equals int float", node.ObjectOf("item", 2, "equals", 2.0), true},
		{"equals objects", node.ObjectOf("item", node.ObjectOf("a", 1, "b", 2), "equals", node.ObjectOf("b", 2, "a", 1)), true},
		{"in list", node.ObjectOf("item", "b", "in", []any{"a", "b"}), true},
		{"not in list", node.ObjectOf("item", "c", "in", []any{"a", "b"}), false},
		{"in object keys", node.ObjectOf("item", "a", "in", node.ObjectOf("a", 1)), true},
		{"in string", node.ObjectOf("item", "ell", "in", "hello"), true},
		{"empty string", node.ObjectOf("empty", ""), true},
		{"empty list", node.ObjectOf("empty", []any{}), true},
		{"not empty", node.ObjectOf("empty", "x"), false},
		{"all", node.ObjectOf("all", []any{
			node.ObjectOf("item", 1, "equals", 1),
			node.ObjectOf("empty", nil),
		}), true},
		{"all fails", node.ObjectOf("all", []any{
			node.ObjectOf("item", 1, "equals", 1),
			node.ObjectOf("item", 1, "equals", 2),
		}), false},
		{"any", node.ObjectOf("any", []any{
			node.ObjectOf("item", 1, "equals", 2),
			node.ObjectOf("item", 1, "equals", 1),
		}), true},
		{"not", node.ObjectOf("not", node.ObjectOf("item", 1, "equals", 2)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.cond, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Eval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEval_Expression(t *testing.T) {
	vars := map[string]any{
		"count": 5,
		"user":  node.ObjectOf("name", "alice"),
	}
	got, err := Eval(node.ObjectOf("expression", `count > 3 && user.name == "alice"`), vars)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("expected expression to be true")
	}

	_, err = Eval(node.ObjectOf("expression", `count + 1`), vars)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("non-boolean expression: err = %v, want ErrInvalid", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, n := range []any{
		"true",
		node.ObjectOf("item", 1),
		node.ObjectOf("item", 1, "equals", 1, "extra", 2),
		node.ObjectOf("all", "not a list"),
	} {
		if _, err := Parse(n); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%v): err = %v, want ErrInvalid", n, err)
		}
	}
}
