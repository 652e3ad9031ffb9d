// Package diagram draws the control flow of a script.
// Supports Mermaid flowchart and ASCII formats.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
	"github.com/ormasoftchile/specscript/pkg/kernel/script"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Step kinds.
const (
	kindCommand  = "command"
	kindDecision = "decision"
	kindLoop     = "loop"
	kindHandler  = "handler"
	kindExit     = "exit"
)

// Generate produces a diagram string from a parsed script.
func Generate(s *script.Script, name string, format Format) (string, error) {
	if s == nil {
		return "", fmt.Errorf("nil script")
	}
	steps := buildSteps(s.Commands, "c")
	switch format {
	case FormatMermaid:
		return generateMermaid(steps), nil
	case FormatASCII:
		return generateASCII(steps, name), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

type diagramStep struct {
	id       string
	title    string
	kind     string
	branches []diagramBranch
}

type diagramBranch struct {
	label string
	steps []diagramStep
}

// buildSteps turns commands into diagram steps. Bodies of control-flow
// and error-handling commands become branches.
func buildSteps(cmds []script.Command, prefix string) []diagramStep {
	steps := make([]diagramStep, 0, len(cmds))
	for i, c := range cmds {
		id := fmt.Sprintf("%s%d", prefix, i+1)
		st := diagramStep{id: id, title: c.Name, kind: kindCommand}
		obj, _ := c.Arg.(*node.Object)

		switch c.Name {
		case "If":
			st.kind = kindDecision
			if obj != nil {
				st.title = "If " + conditionText(obj.Without("then", "else"))
				then, _ := obj.Get("then")
				st.addBranch(id, "then", then)
				if els, ok := obj.Get("else"); ok {
					st.addBranch(id, "else", els)
				}
			}
		case "When":
			st.kind = kindDecision
			list, _ := c.Arg.([]any)
			for _, item := range list {
				br, ok := item.(*node.Object)
				if !ok {
					continue
				}
				if body, ok := br.Get("else"); ok && br.Len() == 1 {
					st.addBranch(id, "else", body)
					continue
				}
				then, _ := br.Get("then")
				st.addBranch(id, conditionText(br.Without("then", "else")), then)
			}
		case "For each":
			st.kind = kindLoop
			if obj != nil {
				label, body := "each item", any(obj)
				for k, v := range obj.All() {
					if strings.HasSuffix(k, " in") {
						label = "each " + strings.TrimSuffix(k, " in") + " in " + summary(v)
						body = obj.Without(k)
						break
					}
				}
				st.addBranch(id, label, body)
			}
		case "Repeat":
			st.kind = kindLoop
			if obj != nil {
				until, _ := obj.Get("until")
				st.addBranch(id, "until "+conditionText(until), obj.Without("until"))
			}
		case "Do":
			st.addBranch(id, "do", c.Arg)
		case "On error":
			st.kind = kindHandler
			st.addBranch(id, "on error", c.Arg)
		case "On error type":
			st.kind = kindHandler
			if obj != nil {
				for k, v := range obj.All() {
					st.addBranch(id, k, v)
				}
			}
		case "Exit":
			st.kind = kindExit
			if c.Arg != nil {
				st.title = "Exit " + summary(c.Arg)
			}
		default:
			if node.KindOf(c.Arg) == node.KindScalar && c.Arg != nil {
				st.title = c.Name + ": " + summary(c.Arg)
			}
		}
		steps = append(steps, st)
	}
	return steps
}

func (s *diagramStep) addBranch(id, label string, body any) {
	br := diagramBranch{label: label}
	if sub, err := script.FromNode(body); err == nil {
		br.steps = buildSteps(sub.Commands, fmt.Sprintf("%s_%d_", id, len(s.branches)+1))
	}
	s.branches = append(s.branches, br)
}

func (s diagramStep) hasElse() bool {
	if s.kind != kindDecision {
		return false
	}
	for _, br := range s.branches {
		if br.label == "else" {
			return true
		}
	}
	return false
}

func conditionText(cond any) string {
	if obj, ok := cond.(*node.Object); ok && obj.Len() == 0 {
		return ""
	}
	data, err := node.JSON(cond, false)
	if err != nil {
		return truncate(node.Text(cond), 30)
	}
	return truncate(string(data), 30)
}

func summary(v any) string {
	if node.KindOf(v) == node.KindScalar {
		return truncate(strings.ReplaceAll(node.Text(v), "\n", " "), 30)
	}
	return "…"
}

// --- Mermaid flowchart ---

func generateMermaid(steps []diagramStep) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if len(steps) == 0 {
		return b.String()
	}

	b.WriteString("    START([Start]) --> " + steps[0].id + "\n")
	writeMermaidSteps(&b, steps, "END")
	b.WriteString("    END([End])\n")
	return b.String()
}

// writeMermaidSteps writes nodes and edges for a sequence that continues
// at next once its last step completes.
func writeMermaidSteps(b *strings.Builder, steps []diagramStep, next string) {
	for i, s := range steps {
		b.WriteString("    " + nodeDefinition(s) + "\n")

		after := next
		if i < len(steps)-1 {
			after = steps[i+1].id
		}
		if s.kind == kindExit {
			b.WriteString(fmt.Sprintf("    %s --> END\n", s.id))
			continue
		}

		for _, br := range s.branches {
			if len(br.steps) == 0 {
				fmt.Fprintf(b, "    %s -->|%q| %s\n", s.id, br.label, after)
				continue
			}
			fmt.Fprintf(b, "    %s -->|%q| %s\n", s.id, br.label, br.steps[0].id)
			target := after
			if s.kind == kindLoop {
				target = s.id
			}
			writeMermaidSteps(b, br.steps, target)
		}

		switch {
		case len(s.branches) == 0:
			fmt.Fprintf(b, "    %s --> %s\n", s.id, after)
		case s.kind != kindCommand && !s.hasElse():
			fmt.Fprintf(b, "    %s -->|\"continue\"| %s\n", s.id, after)
		}
	}
}

func nodeDefinition(s diagramStep) string {
	label := strings.ReplaceAll(s.title, `"`, "'")
	switch s.kind {
	case kindDecision:
		return fmt.Sprintf("%s{\"%s\"}", s.id, label)
	case kindLoop:
		return fmt.Sprintf("%s[[\"%s\"]]", s.id, label)
	case kindHandler:
		return fmt.Sprintf("%s[/\"%s\"/]", s.id, label)
	case kindExit:
		return fmt.Sprintf("%s([\"%s\"])", s.id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", s.id, label)
	}
}

// --- ASCII ---

func generateASCII(steps []diagramStep, name string) string {
	var b strings.Builder
	if name == "" {
		name = "Script"
	}
	if len(steps) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	// Uniform box width so every box and connector aligns.
	const indent = 8
	boxWidth := computeUniformBoxWidth(steps, name)
	connCol := indent + 1 + boxWidth/2 // +1 for the left border character
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)

	headerText := centerPad(name, boxWidth)
	mid := boxWidth / 2
	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + headerText + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")
	b.WriteString(connPad + "│\n")

	for i, s := range steps {
		writeASCIIStep(&b, s, indent, boxWidth)

		if len(s.branches) > 0 {
			b.WriteString(connPad + "│\n")
			var brLines []string
			for _, br := range s.branches {
				brLines = append(brLines, " "+br.label+" ")
				brLines = append(brLines, branchLines(br.steps, 2)...)
			}

			// Minimum 9 for the diamond; odd so ◇ and ┬ land at center.
			brWidth := 9
			for _, l := range brLines {
				if w := runewidth.StringWidth(l); w > brWidth {
					brWidth = w
				}
			}
			if brWidth%2 == 0 {
				brWidth++
			}
			brHalf := brWidth / 2

			brPad := strings.Repeat(" ", max(connCol-brHalf-1, 0))
			b.WriteString(brPad + "┌" + strings.Repeat("─", brHalf) + "◇" + strings.Repeat("─", brHalf) + "┐\n")
			for _, l := range brLines {
				lw := runewidth.StringWidth(l)
				b.WriteString(brPad + "│" + l + strings.Repeat(" ", brWidth-lw) + "│\n")
			}
			b.WriteString(brPad + "└" + strings.Repeat("─", brHalf) + "┬" + strings.Repeat("─", brHalf) + "┘\n")
		}

		if i < len(steps)-1 {
			b.WriteString(connPad + "│\n")
		}
	}
	return b.String()
}

// branchLines lists nested steps as indented lines.
func branchLines(steps []diagramStep, depth int) []string {
	var lines []string
	pad := strings.Repeat(" ", depth)
	for _, s := range steps {
		lines = append(lines, pad+stepIcon(s.kind)+" "+s.title+" ")
		for _, br := range s.branches {
			lines = append(lines, pad+"  "+br.label+" ")
			lines = append(lines, branchLines(br.steps, depth+4)...)
		}
	}
	return lines
}

// computeUniformBoxWidth returns the widest interior width needed across
// all steps and the header name.
func computeUniformBoxWidth(steps []diagramStep, name string) int {
	w := 22
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, s := range steps {
		if sw := runewidth.StringWidth(stepContent(s)); sw > w {
			w = sw
		}
	}
	return w
}

func stepContent(s diagramStep) string {
	return fmt.Sprintf(" %s %s ", stepIcon(s.kind), s.title)
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

func writeASCIIStep(b *strings.Builder, s diagramStep, indent, boxWidth int) {
	content := stepContent(s)
	contentWidth := runewidth.StringWidth(content)

	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	b.WriteString(pad + "┌" + strings.Repeat("─", boxWidth) + "┐\n")
	b.WriteString(pad + "│" + content + strings.Repeat(" ", boxWidth-contentWidth) + "│\n")
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

func stepIcon(kind string) string {
	switch kind {
	case kindDecision:
		return "◇"
	case kindLoop:
		return "⟳"
	case kindHandler:
		return "⚠"
	case kindExit:
		return "■"
	default:
		return "▸"
	}
}

func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
