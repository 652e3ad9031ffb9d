package node

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_ScalarTypes(t *testing.T) {
	tests := []struct {
		src  string
		want any
	}{
		{"42", 42},
		{"4.5", 4.5},
		{"true", true},
		{"null", nil},
		{"", nil},
		{"hello", "hello"},
		{`"42"`, "42"},
		{"1e3", 1000.0},
	}
	for _, tt := range tests {
		got, err := Parse(tt.src)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.src, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %#v, want %#v", tt.src, got, tt.want)
		}
	}
}

func TestParse_KeepsKeyOrder(t *testing.T) {
	n, err := Parse("zeta: 1\nalpha: 2\nmid: 3\n")
	if err != nil {
		t.Fatal(err)
	}
	obj := n.(*Object)
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, obj.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if got := string(mustJSON(t, n)); got != `{"zeta":1,"alpha":2,"mid":3}` {
		t.Errorf("JSON = %s", got)
	}
}

func TestParse_DuplicateKey(t *testing.T) {
	_, err := Parse("a: 1\nb: 2\na: 3\n")
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
	var dk *DuplicateKeyError
	if !errors.As(err, &dk) || dk.Key != "a" || dk.Line != 3 {
		t.Errorf("duplicate key error = %+v", dk)
	}
}

func TestParseAll_SkipsEmptyDocuments(t *testing.T) {
	docs, err := ParseAll(strings.NewReader("---\na: 1\n---\n---\nb: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	single := filepath.Join(dir, "one.yaml")
	multi := filepath.Join(dir, "many.yaml")
	os.WriteFile(single, []byte("name: Ada\n"), 0o644)
	os.WriteFile(multi, []byte("a: 1\n---\nb: 2\n"), 0o644)

	n, err := ReadFile(single)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := n.(*Object).Get("name"); got != "Ada" {
		t.Errorf("name = %v", got)
	}

	n, err = ReadFile(multi)
	if err != nil {
		t.Fatal(err)
	}
	if list, ok := n.([]any); !ok || len(list) != 2 {
		t.Errorf("multi-document file = %#v", n)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{3, "3"},
		{2.5, "2.5"},
		{math.Inf(1), ".inf"},
		{[]any{1, "a"}, `[1,"a"]`},
		{ObjectOf("k", "<v>"), `{"k":"\u003cv\u003e"}`},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("plain"); got != "plain" {
		t.Errorf("Display(scalar) = %q", got)
	}
	got := Display(ObjectOf("name", "Ada", "tags", []any{"a", "b"}))
	want := "name: Ada\ntags:\n  - a\n  - b"
	if got != want {
		t.Errorf("Display(object) =\n%s\nwant\n%s", got, want)
	}
}

func TestEqual(t *testing.T) {
	a := ObjectOf("x", 1, "y", []any{1.0, "s"})
	b := ObjectOf("y", []any{1, "s"}, "x", 1.0)
	if !Equal(a, b) {
		t.Error("objects with reordered keys and int/float values should be equal")
	}
	if Equal([]any{1, 2}, []any{2, 1}) {
		t.Error("arrays compare in order")
	}
	if Equal("1", 1) {
		t.Error("string and number must differ")
	}
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{nil, false, 0, 0.0, "", "false", []any{}, NewObject()} {
		if Truthy(v) {
			t.Errorf("Truthy(%#v) = true", v)
		}
	}
	for _, v := range []any{true, 1, "no", []any{nil}, ObjectOf("a", nil)} {
		if !Truthy(v) {
			t.Errorf("Truthy(%#v) = false", v)
		}
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := ObjectOf("list", []any{ObjectOf("n", 1)})
	cp := Clone(orig).(*Object)
	list, _ := cp.Get("list")
	list.([]any)[0].(*Object).Set("n", 2)

	origList, _ := orig.Get("list")
	if n, _ := origList.([]any)[0].(*Object).Get("n"); n != 1 {
		t.Errorf("original mutated: n = %v", n)
	}
}

func TestWithout(t *testing.T) {
	o := ObjectOf("a", 1, "then", 2, "b", 3)
	if diff := cmp.Diff([]string{"a", "b"}, o.Without("then").Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if o.Len() != 3 {
		t.Error("Without modified the receiver")
	}
}

func TestFrom(t *testing.T) {
	type user struct {
		Name string `yaml:"name"`
		Age  int    `yaml:"age"`
	}
	got, err := From(map[string]any{
		"b":     int64(2),
		"a":     float32(1.5),
		"bytes": []byte("raw"),
		"user":  user{Name: "Ada", Age: 36},
		"list":  []string{"x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":1.5,"b":2,"bytes":"raw","list":["x"],"user":{"name":"Ada","age":36}}`
	if s := string(mustJSON(t, got)); s != want {
		t.Errorf("From = %s\nwant %s", s, want)
	}

	if _, err := From(map[int]string{1: "x"}); err == nil {
		t.Error("expected error for non-string map keys")
	}
}

func TestDecode(t *testing.T) {
	var out struct {
		Name string   `yaml:"name"`
		Tags []string `yaml:"tags"`
	}
	if err := Decode(ObjectOf("name", "Ada", "tags", []any{"x"}), &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "Ada" || len(out.Tags) != 1 {
		t.Errorf("decoded = %+v", out)
	}
}

func TestJSON_Pretty(t *testing.T) {
	got, err := JSON(ObjectOf("a", []any{1}), true)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"a\": [\n    1\n  ]\n}"
	if string(got) != want {
		t.Errorf("JSON pretty = %q", got)
	}
}

func TestJSON_KeepsNestedKeyOrder(t *testing.T) {
	in := ObjectOf(
		"zeta", 1,
		"alpha", ObjectOf("y", true, "b", nil),
		"mid", []any{ObjectOf("z", "last", "a", 2.5)},
	)
	got, err := JSON(in, false)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"zeta":1,"alpha":{"y":true,"b":null},"mid":[{"z":"last","a":2.5}]}`
	if string(got) != want {
		t.Errorf("JSON = %s, want %s", got, want)
	}

	var nilObj *Object
	if got, _ := JSON(ObjectOf("n", nilObj), false); string(got) != `{"n":null}` {
		t.Errorf("nil object = %s", got)
	}
}

func TestParseIfPossible(t *testing.T) {
	if got := ParseIfPossible("[1, 2"); got != "[1, 2" {
		t.Errorf("invalid YAML should fall back to text, got %#v", got)
	}
	if got := ParseIfPossible("7"); got != 7 {
		t.Errorf("got %#v", got)
	}
}

func mustJSON(t *testing.T, n any) []byte {
	t.Helper()
	data, err := JSON(n, false)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
