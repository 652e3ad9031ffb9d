package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/commands"
	"github.com/ormasoftchile/specscript/pkg/config"
	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/trace"
)

// --- run ---

var (
	runVars        []string
	runInputs      []string
	runInteractive bool
	runOutput      string
	runTrace       string
)

var runCmd = &cobra.Command{
	Use:   "run [file | directory command]",
	Short: "Run a script file",
	Long: `Run a .spec.yaml or .spec.md file and print its result.

Given a directory and a command name, runs the script file command of that
directory, for example: specscript run ./scripts create-user

Input parameters are passed with --input name=value; values are parsed as
YAML, so --input count=3 passes a number. Missing input is prompted for
with --interactive and fails otherwise.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	path, err := scriptPath(args)
	if err != nil {
		return err
	}

	assigned, err := parseAssignments("--var", runVars)
	if err != nil {
		return err
	}
	input, err := parseAssignments("--input", runInputs)
	if err != nil {
		return err
	}
	vars := make(map[string]any, assigned.Len()+1)
	for k, v := range assigned.All() {
		vars[k] = v
	}
	vars[engine.InputVariable] = input

	interactive := cfg.Interactive
	if cmd.Flags().Changed("interactive") {
		interactive = runInteractive
	}
	output := cfg.Output
	if cmd.Flags().Changed("output") {
		output = runOutput
	}
	traceFile := cfg.TraceFile
	if cmd.Flags().Changed("trace") {
		traceFile = runTrace
	}

	var tw *trace.Writer
	if traceFile != "" {
		tw, err = trace.NewFileWriter(traceFile, fmt.Sprintf("run-%d", time.Now().UnixNano()))
		if err != nil {
			return err
		}
		defer tw.Close()
	}

	c, err := files.NewContext(path, commands.Library(), files.Options{
		Interactive: interactive,
		Stdout:      cmd.OutOrStdout(),
		Trace:       tw,
		WorkingDir:  cfg.WorkingDir,
		Variables:   vars,
	})
	if err != nil {
		return err
	}
	defer files.Cleanup(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := files.RunFile(ctx, path, c)
	if err != nil {
		return err
	}
	if err := printResult(cmd.OutOrStdout(), result, output); err != nil {
		return err
	}
	waitForServices(ctx, cmd.ErrOrStderr(), c)
	return nil
}

// waitForServices blocks while servers started by the script are running,
// until the run is interrupted.
func waitForServices(ctx context.Context, w io.Writer, c *engine.Context) {
	names := engine.ServicesOf(c.Session).Serving()
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "Serving %s. Press Ctrl+C to stop.\n", strings.Join(names, ", "))
	<-ctx.Done()
}

// scriptPath resolves the run arguments to a script file.
func scriptPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	dir, err := files.OpenDirectory(args[0])
	if err != nil {
		return "", err
	}
	info, ok := dir.Lookup(args[1])
	if !ok {
		return "", fmt.Errorf("no command %q in %s", args[1], filepath.Clean(args[0]))
	}
	return info.File, nil
}

// parseAssignments parses repeated key=value flags in command-line order.
// Values are YAML.
func parseAssignments(flag string, pairs []string) (*node.Object, error) {
	out := node.NewObject()
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid %s %q: expected key=value", flag, p)
		}
		if v == "" {
			out.Set(k, "")
			continue
		}
		out.Set(k, node.ParseIfPossible(v))
	}
	return out, nil
}

// printResult writes the script result. Nothing is printed for a nil
// result.
func printResult(w io.Writer, result any, format string) error {
	if result == nil {
		return nil
	}
	switch format {
	case config.OutputJSON:
		data, err := node.JSON(result, true)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	case config.OutputYAML:
		fmt.Fprintln(w, strings.TrimRight(node.Display(result), "\n"))
	default:
		return fmt.Errorf("unknown --output %q (use yaml or json)", format)
	}
	return nil
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Set a variable (key=value), repeatable")
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "Set an input parameter (key=value), repeatable")
	runCmd.Flags().BoolVar(&runInteractive, "interactive", false, "Prompt for missing input")
	runCmd.Flags().StringVar(&runOutput, "output", config.OutputYAML, "Result format: yaml or json")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Append a JSONL execution trace to this file")
}
