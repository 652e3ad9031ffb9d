package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	testcmds "github.com/ormasoftchile/specscript/pkg/commands/testing"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
)

func newContext(t *testing.T) (*engine.Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := engine.NewContext(Library())
	c.Stdout = &out
	dir := t.TempDir()
	c.WorkingDir = dir
	c.ScriptDir = dir
	return c, &out
}

func run(t *testing.T, src string) (any, string, error) {
	t.Helper()
	s, err := script.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, out := newContext(t)
	result, err := engine.Run(s, c)
	return result, out.String(), err
}

func TestIf_RunsOnlySelectedBranch(t *testing.T) {
	_, out, err := run(t, `
If:
  item: 1
  equals: 2
  then:
    Print: ${never defined}
  else:
    Print: "no"
`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "no\n" {
		t.Errorf("console = %q, want %q", out, "no\n")
	}
}

func TestStickyError_SkipsUntilOnError(t *testing.T) {
	_, out, err := run(t, `
- Error: boom
- Print: unreached
- On error:
    Print: ${error.message}
`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "boom\n" {
		t.Errorf("console = %q, want %q", out, "boom\n")
	}
}

func TestOnErrorType_WildcardAndExact(t *testing.T) {
	tests := []struct {
		name  string
		raise string
		want  string
	}{
		{"exact", "Error: {type: validation, message: bad}", "A\n"},
		{"wildcard", "Error: {type: other, message: bad}", "B\n"},
		{"default type", "Error: plain", "B\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := run(t, `
- `+tt.raise+`
- On error type:
    validation:
      Print: A
    any:
      Print: B
`)
			if err != nil {
				t.Fatal(err)
			}
			if out != tt.want {
				t.Errorf("console = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestOnErrorType_NoMatchKeepsError(t *testing.T) {
	_, _, err := run(t, `
- Error: {type: io, message: disk}
- On error type:
    validation:
      Print: A
`)
	ce, ok := engine.AsCommandError(err)
	if !ok || ce.Type != "io" {
		t.Fatalf("err = %v, want io command error", err)
	}
}

func TestExit_InsideDoList(t *testing.T) {
	result, out, err := run(t, `
- Do:
    - Exit: 42
    - Print: unreached
- Print: also unreached
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != 42 {
		t.Errorf("result = %v, want 42", result)
	}
	if out != "" {
		t.Errorf("console = %q, want nothing", out)
	}
}

func TestError_Forms(t *testing.T) {
	_, _, err := run(t, `Error: {message: bad input, data: {field: name}}`)
	ce, ok := engine.AsCommandError(err)
	if !ok {
		t.Fatalf("err = %v", err)
	}
	if ce.Type != engine.DefaultErrorType || ce.Message != "bad input" {
		t.Errorf("error = %+v", ce)
	}
	if !node.Equal(ce.Data, node.ObjectOf("field", "name")) {
		t.Errorf("data = %v", ce.Data)
	}

	_, _, err = run(t, `Error: [a, b]`)
	if !engine.IsKind(err, engine.KindFormat) {
		t.Errorf("list: err = %v, want format error", err)
	}

	_, _, err = run(t, `Error: {type: x}`)
	if !engine.IsKind(err, engine.KindFormat) {
		t.Errorf("missing message: err = %v, want format error", err)
	}
}

func TestWhen(t *testing.T) {
	_, out, err := run(t, `
- ${n}: 3
- When:
    - item: ${n}
      equals: 1
      then:
        Print: one
    - item: ${n}
      in: [2, 3]
      then:
        Print: two or three
    - else:
        Print: other
`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "two or three\n" {
		t.Errorf("console = %q", out)
	}
}

func TestForEach(t *testing.T) {
	result, _, err := run(t, `
For each:
  ${name} in: [alice, bob]
  Output: Hello ${name}
`)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"Hello alice", "Hello bob"}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestForEach_OverOutputObject(t *testing.T) {
	result, _, err := run(t, `
- Output:
    a: 1
    b: 2
- For each:
    Output: ${item.key}=${item.value}
`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{"a=1", "b=2"}, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRepeat(t *testing.T) {
	result, _, err := run(t, `
- ${count}: 0
- Repeat:
    Add to:
      ${count}: 1
    until:
      item: ${count}
      equals: 3
- Output: ${count}
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != 3 {
		t.Errorf("result = %v, want 3", result)
	}
}

func TestAs(t *testing.T) {
	result, _, err := run(t, `
- Output: [1, 2, 3]
- As: ${numbers}
- Add: ${numbers}
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != 6 {
		t.Errorf("result = %v, want 6", result)
	}
}

func TestDataCommands(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"add strings", `Add: [a, b, c]`, "abc"},
		{"add floats", `Add: [1, 2.5]`, 3.5},
		{"add lists", `Add: [[1], [2, 3]]`, []any{1, 2, 3}},
		{"append", "- Output: [1]\n- Append: [2, 3]", []any{1, 2, 3}},
		{"size", `Size: [a, b]`, 2},
		{"fields", `Fields: {x: 1, y: 2}`, []any{"x", "y"}},
		{"values", `Values: {x: 1, y: 2}`, []any{1, 2}},
		{"sort", `Sort: [c, a, b]`, []any{"a", "b", "c"}},
		{"find", `Find: {path: "users[1].name", in: {users: [{name: a}, {name: b}]}}`, "b"},
		{"find missing", `Find: {path: nope, in: {}}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := run(t, tt.src)
			if err != nil {
				t.Fatal(err)
			}
			if !node.Equal(result, tt.want) {
				t.Errorf("result = %v, want %v", node.Text(result), node.Text(tt.want))
			}
		})
	}
}

func TestJSONPatch(t *testing.T) {
	result, _, err := run(t, `
- Output:
    name: Ada
    tags: [math]
    age: 36
- Json patch:
    patch:
      - {op: test, path: /name, value: Ada}
      - {op: replace, path: /age, value: 37}
      - {op: add, path: /tags/-, value: code}
      - {op: remove, path: /name}
      - {op: add, path: /lang, value: Go}
`)
	if err != nil {
		t.Fatal(err)
	}
	want := node.ObjectOf("tags", []any{"math", "code"}, "age", 37, "lang", "Go")
	if !node.Equal(result, want) {
		t.Errorf("result = %s, want %s", node.Display(result), node.Display(want))
	}
	if diff := cmp.Diff([]string{"tags", "age", "lang"}, result.(*node.Object).Keys()); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}

	result, _, err = run(t, `
- Json patch:
    doc: {a: 1}
    patch:
      - {op: test, path: /a, value: 2}
- On error type:
    Json patch:
      Output: ${error.data.test failed}
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != true {
		t.Errorf("failed test op: result = %v, want true", result)
	}

	_, _, err = run(t, "Json patch: {patch: []}\n")
	if !engine.IsKind(err, engine.KindFormat) {
		t.Errorf("err = %v, want format error without doc or output", err)
	}
}

func TestSortBy(t *testing.T) {
	result, _, err := run(t, `
Sort:
  items:
    - {name: b, age: 30}
    - {name: a, age: 20}
  by: age
`)
	if err != nil {
		t.Fatal(err)
	}
	list := result.([]any)
	first, _ := list[0].(*node.Object).Get("name")
	if first != "a" {
		t.Errorf("first = %v, want a", first)
	}
}

func TestUtilCommands(t *testing.T) {
	result, out, err := run(t, `
- Base64 encode: hello
- Base64 decode: ${output}
- Print: ${output}
- Parse YAML: "{a: [1, 2]}"
- Print JSON: ${output}
- To JSON: ${output}
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != `{"a":[1,2]}` {
		t.Errorf("result = %v", result)
	}
	want := "hello\n{\n  \"a\": [\n    1,\n    2\n  ]\n}\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("console mismatch (-want +got):\n%s", diff)
	}
}

func TestAssertions(t *testing.T) {
	_, _, err := run(t, `
- Output: {a: 1}
- Expected output: {a: 1}
- Assert equals:
    actual: ${output.a}
    expected: 1
- Assert that:
    item: ${output.a}
    in: [1, 2]
`)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = run(t, `
- Assert equals:
    actual: 1
    expected: 2
- On error:
    Print: swallowed?
`)
	if !engine.IsKind(err, engine.KindAssertion) {
		t.Fatalf("err = %v, want assertion failure", err)
	}
}

func TestExpectedOutputMismatchIsCatchable(t *testing.T) {
	result, out, err := run(t, `
- Output: 1
- Expected output: 2
- On error type:
    Output:
      - Print: caught ${error.message}
      - Output: ${error.data.expected}-${error.data.actual}
`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "caught Unexpected output.\n" {
		t.Errorf("console = %q", out)
	}
	if result != "2-1" {
		t.Errorf("result = %v, want 2-1", result)
	}

	_, _, err = run(t, `
- Output: 1
- Expected output: 2
`)
	ce, ok := engine.AsCommandError(err)
	if !ok || ce.Type != "Output" {
		t.Fatalf("err = %v, want Output command error", err)
	}
}

func TestExpectedConsoleOutputMismatchIsCatchable(t *testing.T) {
	c, _ := newContext(t)
	testcmds.CaptureConsole(c, false)
	s, err := script.Parse(`
- Print: hello
- Expected console output: goodbye
- On error type:
    Output:
      Output: ${error.data.actual}
`)
	if err != nil {
		t.Fatal(err)
	}
	result, err := engine.Run(s, c)
	if err != nil {
		t.Fatal(err)
	}
	if result != "hello" {
		t.Errorf("result = %v, want hello", result)
	}
}

func TestCodeExampleResetsConsole(t *testing.T) {
	c, _ := newContext(t)
	testcmds.CaptureConsole(c, false)
	s, err := script.Parse(`
- Print: setup noise
- Code example: Greeting
- Print: hello
- Expected console output: hello
`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Run(s, c); err != nil {
		t.Errorf("run: %v", err)
	}
}

func TestExpectedError(t *testing.T) {
	_, _, err := run(t, `
- Error: {type: custom, message: expected}
- Expected error:
    type: custom
- Print: after
`)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = run(t, `Expected error: anything`)
	if !engine.IsKind(err, engine.KindAssertion) {
		t.Errorf("err = %v, want assertion failure", err)
	}
}

func TestAnswersAndPrompt(t *testing.T) {
	result, _, err := run(t, `
- Answers:
    What is your name?: Alice
    Continue?: "yes"
- Prompt: What is your name?
- As: ${name}
- Confirm: Continue?
- Output: ${name} ${output}
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "Alice true" {
		t.Errorf("result = %v", result)
	}

	_, _, err = run(t, `Prompt: Unprepared?`)
	ce, ok := engine.AsCommandError(err)
	if !ok || ce.Type != "input" {
		t.Errorf("err = %v, want input command error", err)
	}
}

func TestPromptChoices(t *testing.T) {
	result, _, err := run(t, `
- Answers:
    Pick a size: M
- Prompt:
    question: Pick a size
    choices: [S, M, L]
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "M" {
		t.Errorf("result = %v", result)
	}

	result, _, err = run(t, `
Prompt:
  question: Pick a number
  choices: [1, 2, 3]
  default: 2
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != 2 {
		t.Errorf("default result = %v", result)
	}

	_, _, err = run(t, `
- Answers:
    Pick a size: XL
- Prompt:
    question: Pick a size
    choices: [S, M, L]
`)
	ce, ok := engine.AsCommandError(err)
	if !ok || ce.Type != "input" {
		t.Errorf("err = %v, want input command error", err)
	}
}

func TestInputParameters(t *testing.T) {
	result, _, err := run(t, `
- ${input}:
    name: Bob
- Input parameters:
    name: Your name
    greeting:
      description: Greeting
      default: Hi
- Output: ${greeting} ${name}
`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "Hi Bob" {
		t.Errorf("result = %v", result)
	}
}

func TestShell(t *testing.T) {
	result, _, err := run(t, `Shell: echo hello`)
	if err != nil {
		t.Fatal(err)
	}
	if result != "hello" {
		t.Errorf("result = %q, want hello", result)
	}

	_, _, err = run(t, `
- Shell: exit 3
- On error type:
    shell:
      Output: ${error.data.exit code}
`)
	if err != nil {
		t.Fatal(err)
	}
}

func TestSQLite(t *testing.T) {
	result, _, err := run(t, `
- SQLite defaults:
    file: test.db
- SQLite:
    update:
      - create table users (id integer primary key, name text)
      - insert into users (name) values ('alice'), ('bob')
    query: select id, name from users order by id
`)
	if err != nil {
		t.Fatal(err)
	}
	rows, ok := result.([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("result = %v", node.Text(result))
	}
	want := node.ObjectOf("id", 1, "name", "alice")
	if !node.Equal(rows[0], want) {
		t.Errorf("row = %v, want %v", rows[0], want)
	}
	if got := rows[0].(*node.Object).Keys(); !cmp.Equal(got, []string{"id", "name"}) {
		t.Errorf("columns = %v", got)
	}

	_, _, err = run(t, `
SQLite:
  file: bad.db
  query: select * from missing
`)
	ce, ok := engine.AsCommandError(err)
	if !ok || ce.Type != "sqlite" {
		t.Errorf("err = %v, want sqlite command error", err)
	}
}

func TestValidateSchema(t *testing.T) {
	_, _, err := run(t, `
Validate schema:
  schema:
    type: object
    required: [name]
    properties:
      name: {type: string}
  data:
    name: alice
`)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = run(t, `
Validate schema:
  schema:
    type: object
    required: [name]
  data: {}
`)
	ce, ok := engine.AsCommandError(err)
	if !ok || ce.Type != "validation" {
		t.Fatalf("err = %v, want validation error", err)
	}
	if list, ok := ce.Data.([]any); !ok || len(list) == 0 {
		t.Errorf("data = %v, want violations", ce.Data)
	}
}

func TestWriteAndReadFile(t *testing.T) {
	result, _, err := run(t, `
- Output:
    greeting: hello
- Write file: out/data.yaml
- Read file: out/data.yaml
`)
	if err != nil {
		t.Fatal(err)
	}
	if !node.Equal(result, node.ObjectOf("greeting", "hello")) {
		t.Errorf("result = %v", result)
	}
}

func TestTempFile(t *testing.T) {
	s, _ := script.Parse(`Temp file: {name: note.txt, content: hi}`)
	c, _ := newContext(t)
	result, err := engine.Run(s, c)
	if err != nil {
		t.Fatal(err)
	}
	path, _ := result.(string)
	t.Cleanup(func() { os.RemoveAll(filepath.Dir(path)) })
	if !strings.HasSuffix(path, "note.txt") {
		t.Errorf("path = %q", path)
	}
}

func TestLibrary_HasEveryGroup(t *testing.T) {
	for _, name := range []string{"Do", "If", "Error", "On error", "As", "Print", "Add", "Assert equals", "Prompt", "Read file", "Shell", "SQLite", "Validate schema", "Input parameters", "Json patch", "GET", "Http server", "Connect to", "Cli", "Mcp server", "Call Mcp tool"} {
		if _, ok := Library().Lookup(name); !ok {
			t.Errorf("missing command %q", name)
		}
	}
}
