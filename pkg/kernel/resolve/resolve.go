// Package resolve substitutes ${...} variable references in document trees.
//
// A reference is an identifier optionally followed by field and index
// selectors: ${name}, ${user.address.city}, ${items[0].id}. A string that is
// exactly one reference is replaced by the referenced node itself, so a
// template can expand to an object or an array. References embedded in
// longer strings are stringified and concatenated.
package resolve

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// ErrUnresolved is the sentinel wrapped by UnresolvedError.
var ErrUnresolved = errors.New("unresolved variable")

// UnresolvedError names the reference that could not be resolved.
type UnresolvedError struct {
	Ref    string
	Reason string
}

func (e *UnresolvedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unresolved variable ${%s}: %s", e.Ref, e.Reason)
	}
	return fmt.Sprintf("unresolved variable ${%s}", e.Ref)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

var (
	templateRE   = regexp.MustCompile(`\$\{([^}]+)\}`)
	wholeRE      = regexp.MustCompile(`^\$\{([^}]+)\}$`)
	identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ -]*$`)
)

// Resolve returns a copy of n with every variable reference replaced.
// Neither n nor vars is modified. Object keys are never resolved.
func Resolve(n any, vars map[string]any) (any, error) {
	switch v := n.(type) {
	case *node.Object:
		out := node.NewObject()
		for k, val := range v.All() {
			r, err := Resolve(val, vars)
			if err != nil {
				return nil, err
			}
			out.Set(k, r)
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			r, err := Resolve(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case string:
		return String(v, vars)
	default:
		return v, nil
	}
}

// String resolves the references in a single scalar string.
func String(s string, vars map[string]any) (any, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	if m := wholeRE.FindStringSubmatch(s); m != nil {
		return Lookup(m[1], vars)
	}

	var resolveErr error
	out := templateRE.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		ref := match[2 : len(match)-1]
		val, err := Lookup(ref, vars)
		if err != nil {
			resolveErr = err
			return match
		}
		return node.Text(val)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return out, nil
}

// HasTemplate reports whether s contains a variable reference.
func HasTemplate(s string) bool {
	return templateRE.MatchString(s)
}

// Reference reports whether s is exactly ${identifier} and returns the
// identifier. Paths such as ${a.b} do not qualify.
func Reference(s string) (string, bool) {
	m := wholeRE.FindStringSubmatch(s)
	if m == nil || !identifierRE.MatchString(m[1]) {
		return "", false
	}
	return m[1], true
}

// Lookup evaluates a reference path such as "user.items[2].name".
func Lookup(ref string, vars map[string]any) (any, error) {
	name, rest := splitHead(ref)
	val, ok := vars[name]
	if !ok {
		return nil, &UnresolvedError{Ref: ref}
	}

	for rest != "" {
		switch rest[0] {
		case '.':
			var field string
			field, rest = splitField(rest[1:])
			obj, ok := val.(*node.Object)
			if !ok {
				return nil, &UnresolvedError{Ref: ref, Reason: fmt.Sprintf("cannot select field %q from %s", field, node.KindOf(val))}
			}
			val, ok = obj.Get(field)
			if !ok {
				return nil, &UnresolvedError{Ref: ref, Reason: fmt.Sprintf("no field %q", field)}
			}
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, &UnresolvedError{Ref: ref, Reason: "missing ]"}
			}
			idx, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
			if err != nil {
				return nil, &UnresolvedError{Ref: ref, Reason: fmt.Sprintf("invalid index %q", rest[1:end])}
			}
			rest = rest[end+1:]
			arr, ok := val.([]any)
			if !ok {
				return nil, &UnresolvedError{Ref: ref, Reason: fmt.Sprintf("cannot index %s", node.KindOf(val))}
			}
			if idx < 0 || idx >= len(arr) {
				return nil, &UnresolvedError{Ref: ref, Reason: fmt.Sprintf("index %d out of range [0,%d)", idx, len(arr))}
			}
			val = arr[idx]
		default:
			return nil, &UnresolvedError{Ref: ref, Reason: fmt.Sprintf("unexpected %q", rest)}
		}
	}
	return val, nil
}

func splitHead(ref string) (string, string) {
	ref = strings.TrimSpace(ref)
	for i, r := range ref {
		if r == '.' || r == '[' {
			return ref[:i], ref[i:]
		}
	}
	return ref, ""
}

func splitField(s string) (string, string) {
	for i, r := range s {
		if r == '.' || r == '[' {
			return s[:i], s[i:]
		}
	}
	return s, ""
}
