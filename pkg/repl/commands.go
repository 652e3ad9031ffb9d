package repl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
)

// handleScript parses an entry and runs it in the persistent context.
// Command errors stay pending, so a later entry can handle them with On
// error; fatal errors are reported and the context carries on.
func (r *Repl) handleScript(entry string) {
	s, err := script.Parse(entry)
	if err != nil {
		fmt.Fprintf(r.output, "  Error: %v\n", err)
		return
	}
	if len(s.Commands) == 0 {
		return
	}

	pending := r.ctx.Error
	out, err := engine.RunCommands(s, r.ctx)
	if ex, ok := engine.IsExit(err); ok {
		r.print(ex.Value)
		r.done = true
		return
	}
	if ce, ok := engine.AsCommandError(err); ok {
		if ce != pending {
			fmt.Fprintf(r.output, "  Error (%s): %s\n", ce.Type, ce.Message)
		}
		return
	}
	if err != nil {
		fmt.Fprintf(r.output, "  Error: %v\n", err)
		return
	}
	r.print(out)
}

func (r *Repl) print(v any) {
	if v == nil {
		return
	}
	fmt.Fprintln(r.output, node.Display(v))
}

// handleVars lists variables, or shows the named ones.
func (r *Repl) handleVars(parts []string) {
	vars := r.ctx.Variables
	if len(parts) > 1 {
		for _, name := range parts[1:] {
			v, ok := vars[name]
			if !ok {
				fmt.Fprintf(r.output, "  %s is not defined\n", name)
				continue
			}
			fmt.Fprintf(r.output, "  %s = %s\n", name, oneLine(v))
		}
		return
	}
	if len(vars) == 0 {
		fmt.Fprintf(r.output, "No variables defined.\n")
		return
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(r.output, "  %s = %s\n", k, oneLine(vars[k]))
	}
}

func (r *Repl) handleOutput() {
	out := r.ctx.Output()
	if out == nil {
		fmt.Fprintf(r.output, "No output.\n")
		return
	}
	fmt.Fprintln(r.output, node.Display(out))
}

// handleError shows the pending error. ":error clear" drops it.
func (r *Repl) handleError(parts []string) {
	pending := r.ctx.Error
	if pending == nil {
		fmt.Fprintf(r.output, "No pending error.\n")
		return
	}
	if len(parts) > 1 && parts[1] == "clear" {
		r.ctx.Error = nil
		fmt.Fprintf(r.output, "  Cleared %s error.\n", pending.Type)
		return
	}
	fmt.Fprintln(r.output, node.Display(pending.Node()))
}

func (r *Repl) handleHelp() {
	fmt.Fprintln(r.output, "Enter script commands as YAML, for example 'Print: hello'.")
	fmt.Fprintln(r.output, "A line ending in ':' starts a block; finish it with an empty line.")
	fmt.Fprintln(r.output, "")
	fmt.Fprintln(r.output, "Meta commands:")
	fmt.Fprintln(r.output, "  :vars [name...]   Show variables")
	fmt.Fprintln(r.output, "  :output (:o)      Show the current output")
	fmt.Fprintln(r.output, "  :error [clear]    Show or clear the pending error")
	fmt.Fprintln(r.output, "  :help (:?)        Show this help")
	fmt.Fprintln(r.output, "  :quit (:q)        Leave the repl")
}

// oneLine renders a value compactly for listings.
func oneLine(v any) string {
	if v == nil {
		return "null"
	}
	if node.KindOf(v) == node.KindScalar {
		return fmt.Sprintf("%q", node.Text(v))
	}
	s, err := node.JSON(v, false)
	if err != nil {
		return strings.ReplaceAll(node.Display(v), "\n", " ")
	}
	return string(s)
}
