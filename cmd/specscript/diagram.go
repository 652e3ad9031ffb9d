package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/diagram"
	"github.com/ormasoftchile/specscript/pkg/files"
)

// --- diagram ---

var diagramFormat string

var diagramCmd = &cobra.Command{
	Use:   "diagram [file]",
	Short: "Draw the control flow of a script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := files.Load(args[0])
		if err != nil {
			return err
		}
		out, err := diagram.Generate(s, files.CommandName(args[0]), diagram.Format(diagramFormat))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "ascii", "Diagram format: ascii or mermaid")
}
