package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/commands"
	"github.com/ormasoftchile/specscript/pkg/files"
	kschema "github.com/ormasoftchile/specscript/pkg/kernel/schema"
	"github.com/ormasoftchile/specscript/pkg/tui"
)

// --- schema ---

var schemaCommand string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the JSON Schema of scripts to stdout",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	library := commands.Library()
	sch := kschema.ScriptSchema(library.Handlers())
	if schemaCommand != "" {
		h, ok := library.Lookup(schemaCommand)
		if !ok {
			return fmt.Errorf("unknown command %q", schemaCommand)
		}
		if h.Args == nil {
			return fmt.Errorf("command %q has no argument schema", schemaCommand)
		}
		sch = kschema.Reflect(h.Args)
	}
	data, err := kschema.Marshal(sch)
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// --- commands ---

var commandsDir string

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the available commands",
	Long: `List the commands of the standard library by group, followed by the
script file commands of a directory (the current directory by default).`,
	Args: cobra.NoArgs,
	RunE: runCommands,
}

func runCommands(cmd *cobra.Command, args []string) error {
	st := styles()
	out := cmd.OutOrStdout()

	rows := [][]string{{"COMMAND", "GROUP"}}
	for _, h := range commands.Library().Handlers() {
		rows = append(rows, []string{h.Name, h.Group})
	}
	fmt.Fprint(out, tui.Table(rows))

	dir, err := files.OpenDirectory(commandsDir)
	if err != nil {
		return err
	}
	local := dir.Commands()
	if len(local) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\n%s\n", st.Title.Render("Script file commands in "+commandsDir))
	rows = [][]string{{"COMMAND", "CLI NAME", "DESCRIPTION"}}
	for _, info := range local {
		desc := ""
		if s, err := files.Load(info.File); err == nil {
			desc = firstLine(files.Description(s))
		}
		if info.Imported {
			desc = strings.TrimSpace(desc + " (imported)")
		}
		rows = append(rows, []string{info.Name, info.CLIName, tui.Truncate(desc, 60)})
	}
	fmt.Fprint(out, tui.Table(rows))
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func init() {
	schemaCmd.Flags().StringVar(&schemaCommand, "command", "", "Export only the argument schema of this command")
	commandsCmd.Flags().StringVar(&commandsDir, "dir", ".", "Directory whose script files are listed")
}
