package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// CLIOptions is the object form of the Cli command.
type CLIOptions struct {
	Command string `yaml:"command" json:"command" jsonschema:"required"`
	Dir     string `yaml:"cd,omitempty" json:"cd,omitempty"`
}

// RunCLI runs the specscript command line with args in dir and returns
// its console output. It re-executes the running binary; tests replace it.
var RunCLI = func(c *engine.Context, args []string, dir string) (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate specscript binary: %w", err)
	}
	line := quote(self)
	for _, a := range args {
		line += " " + quote(a)
	}
	res, err := Exec(c, line, dir, nil, false)
	if err != nil {
		return "", err
	}
	return res.Stdout + res.Stderr, nil
}

// CLI runs a specscript command line such as "spec --help greet.spec.yaml"
// in the script's temp dir, or in cd, and returns what it printed. The
// first word names the program and is dropped.
var CLI = &engine.Handler{
	Name:  "Cli",
	Group: group,
	Args:  &CLIOptions{},
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return runCLI(c, CLIOptions{Command: node.Text(arg)})
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		var opts CLIOptions
		if err := node.Decode(arg, &opts); err != nil {
			return nil, engine.FormatError("Cli: %v", err)
		}
		if opts.Command == "" {
			return nil, engine.FormatError("Cli: expected field 'command'")
		}
		return runCLI(c, opts)
	},
}

func runCLI(c *engine.Context, opts CLIOptions) (any, error) {
	words := strings.Fields(opts.Command)
	if len(words) == 0 {
		return nil, engine.FormatError("Cli: empty command")
	}
	dir := opts.Dir
	switch {
	case dir == "":
		tmp, err := c.TempDir()
		if err != nil {
			return nil, engine.InternalError(err, "Cli")
		}
		dir = tmp
	case !filepath.IsAbs(dir):
		dir = filepath.Join(c.ScriptDir, dir)
	}
	out, err := RunCLI(c, words[1:], dir)
	if err != nil {
		return nil, engine.InternalError(err, "Cli")
	}
	fmt.Fprint(c.Stdout, out)
	return strings.TrimSpace(out), nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
