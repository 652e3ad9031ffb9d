package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
)

func writeFile(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments("--var", []string{"name=Ada", "count=3", "empty=", "url=a=b", "b=1", "a=2"})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	want := node.ObjectOf("name", "Ada", "count", 3, "empty", "", "url", "a=b", "b", 1, "a", 2)
	if !node.Equal(want, got) {
		t.Errorf("parseAssignments = %s, want %s", node.Display(got), node.Display(want))
	}
	if diff := cmp.Diff([]string{"name", "count", "empty", "url", "b", "a"}, got.Keys()); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseAssignments("--var", []string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	if err := printResult(&buf, []any{1, "two"}, "json"); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(strings.Fields(buf.String()), ""); got != `[1,"two"]` {
		t.Errorf("json = %q", buf.String())
	}

	buf.Reset()
	if err := printResult(&buf, []any{1, "two"}, "yaml"); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "- 1\n- two\n" {
		t.Errorf("yaml = %q", got)
	}

	buf.Reset()
	if err := printResult(&buf, nil, "yaml"); err != nil || buf.Len() != 0 {
		t.Errorf("nil result printed %q (err %v)", buf.String(), err)
	}
	if err := printResult(&buf, 1, "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.spec.yaml", `Input parameters:
  name: Who to greet
Print: Hello ${name}
Output:
  greeting: Hello ${name}
`)
	out, err := execute(t, "run", path, "--input", "name=Ada", "--output", "json")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "Hello Ada\n") || !strings.Contains(out, `"greeting": "Hello Ada"`) {
		t.Errorf("output = %q", out)
	}
}

func TestRunDirectoryCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "say-hi.spec.yaml", "Output: hi\n")
	out, err := execute(t, "run", dir, "say-hi", "--output", "yaml")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hi\n" {
		t.Errorf("output = %q, want %q", out, "hi\n")
	}

	if _, err := execute(t, "run", dir, "missing"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestTestCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.spec.yaml", "Test case: ok\nOutput: 1\nExpected output: 1\n")
	if _, err := execute(t, "test", dir); err != nil {
		t.Fatalf("test: %v", err)
	}

	writeFile(t, dir, "bad.spec.yaml", "Test case: bad\nOutput: 1\nExpected output: 2\n")
	out, err := execute(t, "test", "--json", dir)
	var ee exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Fatalf("err = %v, want exit status 1", err)
	}
	if !strings.Contains(out, `"failed": 1`) {
		t.Errorf("json output = %s", out)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.spec.yaml", "Print: hi\n")
	if _, err := execute(t, "validate", good); err != nil {
		t.Errorf("validate good: %v", err)
	}
	bad := writeFile(t, dir, "bad.spec.yaml", "Prnt: hi\n")
	if _, err := execute(t, "validate", bad); err == nil {
		t.Error("expected validation failure")
	}
}

func TestCommandsCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "create-user.spec.yaml", "Script info: Creates a user\n")
	out, err := execute(t, "commands", "--dir", dir)
	if err != nil {
		t.Fatalf("commands: %v", err)
	}
	for _, want := range []string{"Print", "core/control-flow", "Create user", "create-user", "Creates a user"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestDescribeMarkdown(t *testing.T) {
	s, err := script.Parse(`Script info:
  description: Greets someone
Input parameters:
  name:
    description: Who to greet
    default: World
Print: Hello ${name}
`)
	if err != nil {
		t.Fatal(err)
	}
	md := describeMarkdown("greet.spec.yaml", s)
	for _, want := range []string{"# Greet", "Greets someone", "- **name**: Who to greet (default `World`)", "3 commands", "Print: Hello ${name}"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestDiagramCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "check.spec.yaml", "If:\n  item: 1\n  equals: 1\n  then:\n    Print: yes\n")

	out, err := execute(t, "diagram", "--format", "mermaid", path)
	if err != nil {
		t.Fatalf("diagram: %v", err)
	}
	if !strings.Contains(out, "flowchart TD") || !strings.Contains(out, `c1 -->|"then"| c1_1_1`) {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "diagram", "--format", "svg", path); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestTraceCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.spec.yaml", "Print: hi\n")
	tracePath := filepath.Join(dir, "trace.jsonl")

	if _, err := execute(t, "run", path, "--trace", tracePath); err != nil {
		t.Fatalf("run: %v", err)
	}
	out, err := execute(t, "trace", tracePath)
	if err != nil {
		t.Fatalf("trace: %v\n%s", err, out)
	}
	if !strings.Contains(out, "trace ok") || !strings.Contains(out, "runs:     1") {
		t.Errorf("output = %q", out)
	}

	bad := writeFile(t, dir, "bad.jsonl", "nope\n")
	_, err = execute(t, "trace", bad)
	var ee exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Errorf("err = %v, want exit status 1", err)
	}
}
