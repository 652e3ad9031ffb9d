package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/kernel/trace"
)

// --- trace ---

var traceCmd = &cobra.Command{
	Use:   "trace [file]",
	Short: "Check a JSONL trace file written by --trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := trace.VerifyFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "events:   %d\n", res.EventCount)
		fmt.Fprintf(out, "runs:     %d\n", res.Runs)
		fmt.Fprintf(out, "commands: %d\n", res.Commands)
		fmt.Fprintf(out, "errors:   %d\n", res.Errors)
		if !res.Valid {
			fmt.Fprintf(cmd.ErrOrStderr(), "invalid trace: %s\n", res.Error)
			return exitError{code: 1}
		}
		fmt.Fprintln(out, "trace ok")
		return nil
	},
}
