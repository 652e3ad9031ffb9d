package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
	"github.com/ormasoftchile/specscript/pkg/tui"
)

// --- describe ---

var describeWidth int

var describeCmd = &cobra.Command{
	Use:   "describe [file]",
	Short: "Render a script file as formatted documentation",
	Long: `Render a .spec.md file in the terminal. For a .spec.yaml file, a summary is
generated from its Script info, its input parameters and its commands.`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func runDescribe(cmd *cobra.Command, args []string) error {
	path := args[0]
	var md string
	if strings.HasSuffix(path, ".md") {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		md = string(src)
	} else {
		s, err := files.Load(path)
		if err != nil {
			return err
		}
		md = describeMarkdown(path, s)
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.RenderMarkdown(md, describeWidth))
	return nil
}

// describeMarkdown summarises a YAML script as markdown.
func describeMarkdown(path string, s *script.Script) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", files.CommandName(path))
	if d := files.Description(s); d != "" {
		fmt.Fprintf(&sb, "%s\n\n", strings.TrimSpace(d))
	}

	if params := inputParameters(s); params != nil && params.Len() > 0 {
		sb.WriteString("## Input\n\n")
		for name, def := range params.All() {
			desc := node.Text(def)
			var dflt any
			if obj, ok := def.(*node.Object); ok {
				d, _ := obj.Get("description")
				desc = node.Text(d)
				dflt, _ = obj.Get("default")
			}
			fmt.Fprintf(&sb, "- **%s**", name)
			if desc != "" {
				fmt.Fprintf(&sb, ": %s", desc)
			}
			if dflt != nil {
				fmt.Fprintf(&sb, " (default `%s`)", node.Text(dflt))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	counts := make(map[string]int)
	for _, c := range s.Commands {
		counts[c.Name]++
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "## Commands\n\n%d commands: ", len(s.Commands))
	for i, n := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s ×%d", n, counts[n])
	}
	sb.WriteString("\n\n")

	sb.WriteString("## Script\n\n```yaml\n")
	for _, c := range s.Commands {
		sb.WriteString(strings.TrimRight(node.Display(c.Node()), "\n"))
		sb.WriteString("\n")
	}
	sb.WriteString("```\n")
	return sb.String()
}

// inputParameters returns the declared input of a script, from Input
// parameters or the input field of Script info.
func inputParameters(s *script.Script) *node.Object {
	if c, ok := s.Find("Input parameters"); ok {
		obj, _ := c.Arg.(*node.Object)
		return obj
	}
	if c, ok := s.Find(files.ScriptInfoCommand); ok {
		if info, ok := c.Arg.(*node.Object); ok {
			in, _ := info.Get("input")
			obj, _ := in.(*node.Object)
			return obj
		}
	}
	return nil
}

func init() {
	describeCmd.Flags().IntVar(&describeWidth, "width", 80, "Wrap rendered text at this column (0 disables wrapping)")
}
