package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrDuplicateKey is returned when a mapping defines the same key twice.
var ErrDuplicateKey = errors.New("duplicate key")

// DuplicateKeyError reports the offending key and its source line.
type DuplicateKeyError struct {
	Key  string
	Line int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q at line %d", e.Key, e.Line)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// Parse reads a single YAML (or JSON) document. An empty document is nil.
func Parse(text string) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return FromYAML(&doc)
}

// ParseAll reads a stream of YAML documents separated by '---'.
// Empty documents are skipped.
func ParseAll(r io.Reader) ([]any, error) {
	dec := yaml.NewDecoder(r)
	var docs []any
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		n, err := FromYAML(&doc)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		docs = append(docs, n)
	}
	return docs, nil
}

// ReadFile reads a YAML or JSON data file. A file holding several
// documents yields them as a list.
func ReadFile(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()
	docs, err := ParseAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	switch len(docs) {
	case 0:
		return nil, nil
	case 1:
		return docs[0], nil
	default:
		return docs, nil
	}
}

// ParseIfPossible parses text as YAML and falls back to the text itself.
func ParseIfPossible(text string) any {
	n, err := Parse(text)
	if err != nil {
		return text
	}
	return n
}

// FromYAML converts a yaml.v3 node tree into a document node.
func FromYAML(yn *yaml.Node) (any, error) {
	if yn == nil || yn.Kind == 0 {
		return nil, nil
	}
	switch yn.Kind {
	case yaml.DocumentNode:
		if len(yn.Content) == 0 {
			return nil, nil
		}
		return FromYAML(yn.Content[0])
	case yaml.AliasNode:
		return FromYAML(yn.Alias)
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(yn.Content); i += 2 {
			k, v := yn.Content[i], yn.Content[i+1]
			if obj.Has(k.Value) {
				return nil, &DuplicateKeyError{Key: k.Value, Line: k.Line}
			}
			val, err := FromYAML(v)
			if err != nil {
				return nil, err
			}
			obj.Set(k.Value, val)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(yn.Content))
		for _, item := range yn.Content {
			val, err := FromYAML(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil
	case yaml.ScalarNode:
		return scalar(yn)
	}
	return nil, fmt.Errorf("unsupported yaml node kind %d at line %d", yn.Kind, yn.Line)
}

func scalar(yn *yaml.Node) (any, error) {
	switch yn.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := yn.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int":
		var i int
		if err := yn.Decode(&i); err == nil {
			return i, nil
		}
		var f float64
		if err := yn.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	case "!!float":
		var f float64
		if err := yn.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return yn.Value, nil
	}
}

// ToYAML converts a document node into a yaml.v3 node tree.
func ToYAML(n any) *yaml.Node {
	switch v := n.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(v)}
	case string:
		yn := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
		if strings.Contains(v, "\n") {
			yn.Style = yaml.LiteralStyle
		}
		return yn
	case []any:
		yn := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v {
			yn.Content = append(yn.Content, ToYAML(item))
		}
		return yn
	case *Object:
		yn := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for k, val := range v.All() {
			yn.Content = append(yn.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				ToYAML(val))
		}
		return yn
	default:
		conv, err := From(n)
		if err != nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(n)}
		}
		return ToYAML(conv)
	}
}

// YAML renders a node as a YAML document with two-space indentation.
func YAML(n any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ToYAML(n)); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode yaml: %w", err)
	}
	return buf.String(), nil
}

// Display renders a node for humans: scalars bare, containers as YAML.
func Display(n any) string {
	if KindOf(n) == KindScalar {
		return Text(n)
	}
	out, err := YAML(n)
	if err != nil {
		return Text(n)
	}
	return strings.TrimRight(out, "\n")
}

// Decode converts a node into a Go value using its yaml struct tags.
func Decode(n any, out any) error {
	if err := ToYAML(n).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func fromStruct(v any) (any, error) {
	var yn yaml.Node
	if err := yn.Encode(v); err != nil {
		return nil, fmt.Errorf("convert %T: %w", v, err)
	}
	return FromYAML(&yn)
}

// JSON renders a node as JSON, keeping object key order. Strings use
// encoding/json's HTML-safe escaping.
func JSON(n any, pretty bool) ([]byte, error) {
	switch n.(type) {
	case nil, bool, int, float64, string, []any, *Object:
	default:
		conv, err := From(n)
		if err != nil {
			return nil, err
		}
		n = conv
	}
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(n, "", "  ")
	} else {
		data, err = json.Marshal(n)
	}
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return data, nil
}
