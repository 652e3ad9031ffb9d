package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/commands"
	stesting "github.com/ormasoftchile/specscript/pkg/testing"
	"github.com/ormasoftchile/specscript/pkg/tui"
)

// --- test ---

var (
	testJSON     bool
	testFailFast bool
	testTimeout  string
	testFilter   string
)

var testCmd = &cobra.Command{
	Use:   "test [file | directory...]",
	Short: "Run the test cases of script files",
	Long: `Run every "Test case" of the given script files. Directories are searched
recursively for .spec.yaml and .spec.md files. Each test case runs in its own
copy of the script context with console output captured.

Exit codes:
  0 - all test cases passed
  1 - at least one test case failed or errored`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	timeout := cfg.TestTimeout
	if cmd.Flags().Changed("timeout") {
		d, err := time.ParseDuration(testTimeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", testTimeout, err)
		}
		timeout = d
	}

	runner := &stesting.Runner{
		Registry: commands.Library(),
		Timeout:  timeout,
		FailFast: testFailFast,
		Filter:   testFilter,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outputs, summary, err := runner.RunAll(ctx, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if testJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"scripts": outputs, "summary": summary}); err != nil {
			return err
		}
	} else {
		st := styles()
		for _, o := range outputs {
			tui.PrintTestOutput(out, o, st)
		}
		tui.PrintTestSummary(out, summary, st)
	}

	if !summary.OK() {
		return exitError{code: 1}
	}
	return nil
}

func init() {
	testCmd.Flags().BoolVar(&testJSON, "json", false, "Output results as structured JSON")
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop after the first failing test case")
	testCmd.Flags().StringVar(&testTimeout, "timeout", "30s", "Per test case timeout (e.g. 30s, 1m)")
	testCmd.Flags().StringVar(&testFilter, "filter", "", "Run only test cases whose name contains this text")
}
