package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/commands"
	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/repl"
)

// --- repl ---

var replCmd = &cobra.Command{
	Use:   "repl [directory]",
	Short: "Start an interactive shell",
	Long: `Start an interactive shell that runs commands entered as YAML. Variables
and the output persist between entries. Script file commands of the
directory (the current directory by default) are available.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	c, err := files.NewContext(dir, commands.Library(), files.Options{
		Interactive: true,
		Stdout:      cmd.OutOrStdout(),
		WorkingDir:  cfg.WorkingDir,
	})
	if err != nil {
		return err
	}
	defer files.Cleanup(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return repl.New(c, cmd.OutOrStdout()).Run(ctx)
}
