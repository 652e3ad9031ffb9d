// Package shell implements the Shell command, which runs a command line
// through the system shell.
package shell

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "shell"

// ErrorType tags command errors raised for non-zero exit codes.
const ErrorType = "shell"

// Handlers returns the shell commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Shell, CLI}
}

// Options is the object form of the Shell command.
type Options struct {
	Command     string            `yaml:"command" json:"command" jsonschema:"required"`
	Dir         string            `yaml:"cd,omitempty" json:"cd,omitempty"`
	ShowOutput  bool              `yaml:"show output,omitempty" json:"show output,omitempty"`
	ShowCommand bool              `yaml:"show command,omitempty" json:"show command,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Result is the outcome of one shell invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Shell runs a command line and returns its trimmed standard output.
// A non-zero exit raises a command error of type "shell" whose data holds
// the exit code and both output streams.
var Shell = &engine.Handler{
	Name:  "Shell",
	Group: group,
	Args:  &Options{},
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return run(c, Options{Command: node.Text(arg)})
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		var opts Options
		if err := node.Decode(arg, &opts); err != nil {
			return nil, engine.FormatError("Shell: %v", err)
		}
		if opts.Command == "" {
			return nil, engine.FormatError("Shell: expected field 'command'")
		}
		return run(c, opts)
	},
}

func run(c *engine.Context, opts Options) (any, error) {
	dir := c.ScriptDir
	if opts.Dir != "" {
		dir = opts.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.ScriptDir, dir)
		}
	}

	if opts.ShowCommand {
		fmt.Fprintf(c.Stdout, "$ %s\n", opts.Command)
	}
	res, err := Exec(c, opts.Command, dir, opts.Env, opts.ShowOutput)
	if err != nil {
		return nil, engine.InternalError(err, "Shell")
	}
	if res.ExitCode != 0 {
		data := node.ObjectOf("exit code", res.ExitCode, "stdout", res.Stdout, "stderr", res.Stderr)
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("command exited with code %d", res.ExitCode)
		}
		return nil, engine.TypedError(ErrorType, data, "%s", msg)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Exec runs command through the platform shell in dir. With show the
// output streams are echoed to the console while they are captured.
func Exec(c *engine.Context, command, dir string, env map[string]string, show bool) (*Result, error) {
	name, flag := "sh", "-c"
	if runtime.GOOS == "windows" {
		name, flag = "cmd", "/C"
	}

	cmd := exec.CommandContext(c.Context(), name, flag, command) //#nosec G204 -- the command line is authored by the script owner
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if show {
		cmd.Stdout = io.MultiWriter(&stdout, c.Stdout)
		cmd.Stderr = io.MultiWriter(&stderr, c.Stdout)
	}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || c.Context().Err() != nil {
			return nil, fmt.Errorf("exec %q: %w", command, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		ExitCode: exitCode,
		Stdout:   normalizeLineEndings(stdout.String()),
		Stderr:   normalizeLineEndings(stderr.String()),
	}, nil
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
