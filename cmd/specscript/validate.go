package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/commands"
	"github.com/ormasoftchile/specscript/pkg/files"
	kschema "github.com/ormasoftchile/specscript/pkg/kernel/schema"
)

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check script files against the command library",
	Long: `Check that every command of the script files is known, either to the command
library or as a script file command of the file's directory, and that
command arguments match their declared JSON Schema.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	st := styles()
	failed := 0
	for _, path := range args {
		violations, err := files.Validate(path, commands.Library())
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %s: %v\n", st.Error.Render("✗"), path, err)
			failed++
			continue
		}
		if len(violations) > 0 {
			printViolations(path, violations)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", st.Passed.Render("✓"), path)
	}
	if failed > 0 {
		return fmt.Errorf("validation failed for %d file(s)", failed)
	}
	return nil
}

func printViolations(path string, violations []kschema.Violation) {
	st := styles()
	fmt.Fprintf(os.Stderr, "%s %s: %d problem(s)\n\n", st.Error.Render("✗"), path, len(violations))
	for i, v := range violations {
		fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, v.Message)
		if v.Path != "" {
			fmt.Fprintf(os.Stderr, "     at: %s\n", v.Path)
		}
	}
}
