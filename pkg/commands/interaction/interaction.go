// Package interaction implements commands that ask the user for input.
// Prepared answers take precedence, so scripts can run unattended.
package interaction

import (
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "user-interaction"

// KeyAnswers holds the prepared answers, a map from question to answer.
const KeyAnswers engine.SessionKey = "interaction.answers"

// ErrorType tags command errors raised when no answer is available.
const ErrorType = "input"

// Handlers returns the interaction commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{Answers, Prompt, Confirm}
}

// Answers records prepared answers keyed by question. The stored map is
// replaced rather than mutated so readers never see a partial write.
var Answers = &engine.Handler{
	Name:  "Answers",
	Group: group,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		c.Session.Update(KeyAnswers, func(old any, _ bool) any {
			prev, _ := old.(map[string]any)
			answers := make(map[string]any, len(prev)+arg.Len())
			for q, a := range prev {
				answers[q] = a
			}
			for q, a := range arg.All() {
				answers[q] = a
			}
			return answers
		})
		return nil, nil
	},
}

// Prompt asks a question and returns the answer. The object form
// {question, default} supplies an answer for empty input, and a
// "choices" list restricts the answer to one of its items.
var Prompt = &engine.Handler{
	Name:  "Prompt",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		return Ask(c, node.Text(arg), nil)
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		q, ok := arg.Get("question")
		if !ok {
			return nil, engine.FormatError("Prompt: expected field 'question'")
		}
		def, _ := arg.Get("default")
		if raw, ok := arg.Get("choices"); ok {
			choices, ok := raw.([]any)
			if !ok {
				return nil, engine.FormatError("Prompt: choices must be a list")
			}
			return Choose(c, node.Text(q), choices, def)
		}
		return Ask(c, node.Text(q), def)
	},
}

// Confirm asks a yes/no question and returns a boolean.
var Confirm = &engine.Handler{
	Name:  "Confirm",
	Group: group,
	Scalar: func(c *engine.Context, arg any) (any, error) {
		answer, err := Ask(c, node.Text(arg)+" [y/n]", nil)
		if err != nil {
			return nil, err
		}
		if b, ok := answer.(bool); ok {
			return b, nil
		}
		switch strings.ToLower(strings.TrimSpace(node.Text(answer))) {
		case "y", "yes", "true":
			return true, nil
		default:
			return false, nil
		}
	},
}

// Ask returns the prepared answer to question, else reads one from the
// terminal when the context is interactive. Without either, def is
// returned when set; otherwise it raises an "input" command error.
func Ask(c *engine.Context, question string, def any) (any, error) {
	if answers, ok := engine.SessionValue[map[string]any](c.Session, KeyAnswers); ok {
		if a, ok := answers[question]; ok {
			return a, nil
		}
		if a, ok := answers[strings.TrimSuffix(question, " [y/n]")]; ok {
			return a, nil
		}
	}
	if !c.Interactive {
		if def != nil {
			return def, nil
		}
		return nil, engine.TypedError(ErrorType, nil, "no answer for %q", question)
	}

	line, err := readLine(question, c.Stdout)
	if err != nil {
		return nil, err
	}
	if line == "" && def != nil {
		return def, nil
	}
	return line, nil
}

func readLine(question string, out io.Writer) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          question + " ",
		Stdout:          out,
		InterruptPrompt: "^C",
	})
	if err != nil {
		return "", engine.InternalError(err, "init readline")
	}
	defer rl.Close()

	line, err := rl.Readline()
	switch {
	case errors.Is(err, readline.ErrInterrupt), errors.Is(err, io.EOF):
		return "", engine.TypedError(ErrorType, nil, "no answer for %q", question)
	case err != nil:
		return "", engine.InternalError(err, "read answer")
	}
	return strings.TrimSpace(line), nil
}
