// Package repl provides an interactive shell that runs script commands
// against one persistent context.
package repl

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
)

// Repl reads commands from the terminal and runs them. Variables, the
// output and a pending error carry over from one entry to the next.
type Repl struct {
	ctx    *engine.Context
	output io.Writer
	rl     *readline.Instance
	done   bool
}

// New creates a REPL over c. Console output of the commands goes to
// c.Stdout; REPL messages go to output.
func New(c *engine.Context, output io.Writer) *Repl {
	return &Repl{ctx: c, output: output}
}

// Run starts the interactive loop. Entries are YAML; a line ending in ':'
// opens a block that is closed by an empty line.
func (r *Repl) Run(ctx context.Context) error {
	r.ctx.WithContext(ctx)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          r.buildPrompt(),
		AutoComplete:    r.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	r.rl = rl
	defer rl.Close()

	fmt.Fprintf(r.output, "specscript repl: %d commands available\n", len(r.ctx.Registry.Names()))
	fmt.Fprintf(r.output, "Type ':help' for meta commands, ':quit' to leave.\n\n")

	var block []string
	for !r.done {
		if len(block) > 0 {
			rl.SetPrompt("... ")
		} else {
			rl.SetPrompt(r.buildPrompt())
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt && len(block) > 0 {
				block = nil
				continue
			}
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		if len(block) > 0 {
			if strings.TrimSpace(line) != "" {
				block = append(block, line)
				continue
			}
			r.Eval(strings.Join(block, "\n"))
			block = nil
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(trimmed, ":") {
			block = append(block, line)
			continue
		}
		r.Eval(line)
	}
	return nil
}

// Done reports whether the session was ended by :quit or Exit.
func (r *Repl) Done() bool {
	return r.done
}

// Eval handles one entry: a meta command or YAML script text.
func (r *Repl) Eval(entry string) {
	trimmed := strings.TrimSpace(entry)
	if strings.HasPrefix(trimmed, ":") {
		r.meta(strings.Fields(trimmed))
		return
	}
	r.handleScript(entry)
}

func (r *Repl) meta(parts []string) {
	switch parts[0] {
	case ":vars", ":v":
		r.handleVars(parts)
	case ":output", ":o":
		r.handleOutput()
	case ":error", ":e":
		r.handleError(parts)
	case ":help", ":?":
		r.handleHelp()
	case ":quit", ":q":
		fmt.Fprintf(r.output, "Bye.\n")
		r.done = true
	default:
		fmt.Fprintf(r.output, "Unknown meta command: %q. Type ':help' for available commands.\n", parts[0])
	}
}

// buildPrompt shows whether an error is pending: specscript> or
// specscript[error]>
func (r *Repl) buildPrompt() string {
	if r.ctx.Error != nil {
		return fmt.Sprintf("specscript[%s]> ", r.ctx.Error.Type)
	}
	return "specscript> "
}

func (r *Repl) completer() *readline.PrefixCompleter {
	completer := readline.NewPrefixCompleter()
	for _, m := range []string{":vars", ":output", ":error", ":help", ":quit"} {
		completer.Children = append(completer.Children, readline.PcItem(m))
	}
	for _, name := range r.ctx.Registry.Names() {
		completer.Children = append(completer.Children, readline.PcItem(name+": "))
	}
	return completer
}
