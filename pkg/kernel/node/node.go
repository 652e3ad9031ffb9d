// Package node implements the document tree shared by scripts, command
// arguments and command results.
//
// A node is a plain Go value holding one of:
//
//	nil, bool, int, float64, string   scalars
//	[]any                             array
//	*Object                           object (insertion-ordered)
//
// Object key order is preserved because it defines command execution order.
package node

import (
	"fmt"
	"iter"
	"math"
	"reflect"
	"sort"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind classifies a node by shape.
type Kind string

const (
	KindScalar Kind = "scalar"
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// Object is an insertion-ordered mapping from string keys to nodes.
type Object struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{m: orderedmap.New[string, any]()}
}

// MarshalJSON writes the object's fields in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	return o.m.MarshalJSON()
}

// ObjectOf builds an object from alternating key/value arguments.
// It panics on an odd argument count or a non-string key.
func ObjectOf(kv ...any) *Object {
	if len(kv)%2 != 0 {
		panic("node.ObjectOf: odd number of arguments")
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("node.ObjectOf: key %v is not a string", kv[i]))
		}
		o.Set(k, kv[i+1])
	}
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	return o.m.Get(key)
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (o *Object) Set(key string, value any) {
	o.m.Set(key, value)
}

// Delete removes key and returns the removed value.
func (o *Object) Delete(key string) (any, bool) {
	return o.m.Delete(key)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return o.m.Len()
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	for k := range o.All() {
		keys = append(keys, k)
	}
	return keys
}

// All iterates over key/value pairs in insertion order.
func (o *Object) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if o == nil {
			return
		}
		for p := o.m.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Without returns a shallow copy of o with the given keys removed.
func (o *Object) Without(keys ...string) *Object {
	out := NewObject()
	for k, v := range o.All() {
		skip := false
		for _, drop := range keys {
			if k == drop {
				skip = true
				break
			}
		}
		if !skip {
			out.Set(k, v)
		}
	}
	return out
}

// String renders the object as compact JSON.
func (o *Object) String() string {
	return Text(o)
}

// KindOf returns the shape of n.
func KindOf(n any) Kind {
	switch n.(type) {
	case *Object:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindScalar
	}
}

// Clone returns a deep copy of n.
func Clone(n any) any {
	switch v := n.(type) {
	case *Object:
		out := NewObject()
		for k, val := range v.All() {
			out.Set(k, Clone(val))
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two nodes are deeply equal. Arrays compare in
// order; objects compare by key set regardless of order; numbers compare
// by value across int and float64.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for k, v := range av.All() {
			other, ok := bv.Get(k)
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case int, float64:
		af, _ := Number(a)
		bf, ok := Number(b)
		return ok && af == bf
	default:
		return a == b
	}
}

// Number converts a numeric node to float64.
func Number(n any) (float64, bool) {
	switch v := n.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Truthy reports the boolean interpretation of a node: false, null, zero,
// "", "false", and empty containers are false.
func Truthy(n any) bool {
	switch v := n.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != "" && v != "false"
	case []any:
		return len(v) > 0
	case *Object:
		return v.Len() > 0
	default:
		return true
	}
}

// Text stringifies a node for template concatenation: strings verbatim,
// null as empty string, other scalars in YAML notation, containers as
// compact JSON.
func Text(n any) string {
	switch v := n.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return formatFloat(v)
	default:
		data, err := JSON(n, false)
		if err != nil {
			return fmt.Sprint(n)
		}
		return string(data)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// From converts an arbitrary Go value into a node. Maps get sorted keys,
// integer and float types are normalised to int and float64, structs are
// converted through their yaml tags.
func From(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, int, float64, string, *Object:
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			conv, err := From(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := NewObject()
		for _, k := range keys {
			conv, err := From(val[k])
			if err != nil {
				return nil, err
			}
			out.Set(k, conv)
		}
		return out, nil
	case []byte:
		return string(val), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return From(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			conv, err := From(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("convert %T: map keys must be strings", v)
		}
		m := make(map[string]any, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			m[it.Key().String()] = it.Value().Interface()
		}
		return From(m)
	case reflect.Struct:
		return fromStruct(v)
	}
	return nil, fmt.Errorf("convert %T: unsupported value", v)
}

// MustFrom is From for values known to be convertible.
func MustFrom(v any) any {
	n, err := From(v)
	if err != nil {
		panic(err)
	}
	return n
}
