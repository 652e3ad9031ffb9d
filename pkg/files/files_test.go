package files_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/specscript/pkg/commands"
	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

func testdataDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file location")
	}
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata")
}

func scriptsDir(t *testing.T) string {
	return filepath.Join(testdataDir(t), "scripts")
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		file, name, cli string
	}{
		{"create-user.spec.yaml", "Create user", "create-user"},
		{"dir/hello.spec.md", "Hello", "hello"},
		{"Already Named.spec.yaml", "Already Named", "already-named"},
	}
	for _, tt := range tests {
		if got := files.CommandName(tt.file); got != tt.name {
			t.Errorf("CommandName(%q) = %q, want %q", tt.file, got, tt.name)
		}
		if got := files.CLIName(tt.file); got != tt.cli {
			t.Errorf("CLIName(%q) = %q, want %q", tt.file, got, tt.cli)
		}
	}
}

func TestIsScript(t *testing.T) {
	for name, want := range map[string]bool{
		"a.spec.yaml": true,
		"a.spec.md":   true,
		"a.yaml":      false,
		"README.md":   false,
	} {
		if got := files.IsScript(name); got != want {
			t.Errorf("IsScript(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestOpenDirectory(t *testing.T) {
	dir, err := files.OpenDirectory(scriptsDir(t))
	if err != nil {
		t.Fatalf("OpenDirectory: %v", err)
	}
	var names []string
	for _, info := range dir.Commands() {
		names = append(names, info.Name)
	}
	want := []string{"Basics", "Double", "Greet", "Imports", "Welcome"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	info, ok := dir.Lookup("double")
	if !ok || !info.Imported || info.Name != "Double" {
		t.Errorf("Lookup(double) = %+v, %v", info, ok)
	}
	if _, ok := dir.Handler("Greet"); !ok {
		t.Error("Handler(Greet) not found")
	}
	if _, ok := dir.Handler("Nope"); ok {
		t.Error("Handler(Nope) found")
	}
}

func TestLocalOverridesImport(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "lib")
	if err := os.Mkdir(lib, 0o755); err != nil {
		t.Fatal(err)
	}
	write(t, filepath.Join(lib, "tool.spec.yaml"), "Output: imported\n")
	write(t, filepath.Join(dir, "tool.spec.yaml"), "Output: local\n")
	write(t, filepath.Join(dir, files.ConfigFile), "imports:\n  - lib/tool.spec.yaml\n")

	d, err := files.OpenDirectory(dir)
	if err != nil {
		t.Fatalf("OpenDirectory: %v", err)
	}
	info, _ := d.Lookup("Tool")
	if info.Imported {
		t.Errorf("Tool resolved to the import, want the local file")
	}
}

func TestMissingImport(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, files.ConfigFile), "imports:\n  - missing.spec.yaml\n")
	if _, err := files.OpenDirectory(dir); err == nil {
		t.Error("expected error for a missing import")
	}
}

func TestDescription(t *testing.T) {
	s, err := files.Load(filepath.Join(scriptsDir(t), "greet.spec.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if got := files.Description(s); got != "Greets someone by name" {
		t.Errorf("Description = %q", got)
	}
}

func run(t *testing.T, path string, vars map[string]any) (any, string, error) {
	t.Helper()
	var out bytes.Buffer
	c, err := files.NewContext(path, commands.Library(), files.Options{Stdout: &out, Variables: vars})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { files.Cleanup(c) })
	result, err := files.RunFile(context.Background(), path, c)
	return result, out.String(), err
}

func TestRunFileDefaults(t *testing.T) {
	result, console, err := run(t, filepath.Join(scriptsDir(t), "greet.spec.yaml"), nil)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if result != "Hello World!" || console != "Hello World!\n" {
		t.Errorf("result = %v, console = %q", result, console)
	}
}

func TestRunFileInput(t *testing.T) {
	vars := map[string]any{engine.InputVariable: node.ObjectOf("name", "Linus")}
	result, _, err := run(t, filepath.Join(scriptsDir(t), "greet.spec.yaml"), vars)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if result != "Hello Linus!" {
		t.Errorf("result = %v", result)
	}
}

func TestRunFileCallsLocalScript(t *testing.T) {
	result, console, err := run(t, filepath.Join(scriptsDir(t), "welcome.spec.yaml"), nil)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if !node.Equal(result, node.ObjectOf("message", "Hello Ada!")) {
		t.Errorf("result = %s", node.Display(result))
	}
	if console != "Hello Ada!\n" {
		t.Errorf("console = %q", console)
	}
}

func TestRunFileChildVariablesIsolated(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "child.spec.yaml"), "${secret}: 1\nOutput: done\n")
	main := filepath.Join(dir, "main.spec.yaml")
	write(t, main, "Child: {}\nOutput: ${secret}\n")
	if _, _, err := run(t, main, nil); !engine.IsKind(err, engine.KindUnresolved) {
		t.Errorf("child variable leaked into the caller: err = %v", err)
	}
}

func TestRunFileExitStopsOnlyTheChild(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "child.spec.yaml"), "Exit: 7\nPrint: not reached\nOutput: 8\n")
	main := filepath.Join(dir, "main.spec.yaml")
	write(t, main, "Child: {}\nPrint: ${output}\nOutput: after\n")

	result, console, err := run(t, main, nil)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if console != "7\n" {
		t.Errorf("console = %q, want %q", console, "7\n")
	}
	if result != "after" {
		t.Errorf("result = %v, want the caller to keep running", result)
	}
}

func TestRunFileMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.spec.md")
	write(t, path, "# Doc\n\n```yaml specscript\nPrint: one\n```\n\n```output\none\n```\n\n```yaml specscript\nOutput: 2\n```\n")

	result, console, err := run(t, path, nil)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if result != 2 || console != "one\n" {
		t.Errorf("result = %v, console = %q", result, console)
	}
}

func TestRunFileErrorContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.spec.yaml")
	write(t, path, "Print: ok\nFrobnicate: now\n")

	_, _, err := run(t, path, nil)
	if !engine.IsKind(err, engine.KindUnknownCommand) {
		t.Fatalf("err = %v, want unknown command", err)
	}
	if !strings.Contains(err.Error(), "broken.spec.yaml") {
		t.Errorf("error %q does not name the script", err)
	}
}

func TestValidate(t *testing.T) {
	violations, err := files.Validate(filepath.Join(scriptsDir(t), "imports.spec.yaml"), commands.Library())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("violations = %v", violations)
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.spec.yaml")
	write(t, bad, "Print: ok\nFrobnicate: now\n")
	violations, err = files.Validate(bad, commands.Library())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(violations) == 0 {
		t.Error("expected a violation for an unknown command")
	}
}

func TestCleanup(t *testing.T) {
	c, err := files.NewContext(t.TempDir(), commands.Library(), files.Options{})
	if err != nil {
		t.Fatal(err)
	}
	dir, err := c.TempDir()
	if err != nil {
		t.Fatal(err)
	}
	if err := files.Cleanup(c); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir %s still exists", dir)
	}
}

func write(t *testing.T, path, src string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}
