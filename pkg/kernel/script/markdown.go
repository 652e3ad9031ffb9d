package script

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// Commands emitted for markdown blocks that are not specscript yaml.
const (
	ExpectedConsoleOutput = "Expected console output"
	PrintCommand          = "Print"
	ShellCommand          = "Shell"
	CliCommand            = "Cli"
	TempFileCommand       = "Temp file"
	AnswersCommand        = "Answers"
)

// FromMarkdown extracts a script from a markdown document. The first
// heading becomes the title. Blocks map to commands in document order:
//
//	```yaml specscript    the block's commands
//	```yaml file=NAME     Temp file {name, content}
//	```shell              Shell {command, show output, cd}
//	```shell cli          Cli {command, cd}
//	```answers            Answers with the parsed block
//	```output             Expected console output
//	> quote               Print with the quoted text
//
// Shell blocks whose info carries "ignore" are skipped.
func FromMarkdown(src []byte) (*Script, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	s := &Script{}
	var walkErr error
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Heading:
			if s.Title == "" {
				s.Title = headingText(v, src)
			}
		case *ast.Blockquote:
			s.Commands = append(s.Commands, Command{Name: PrintCommand, Arg: quoteText(v, src)})
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			cmds, err := blockCommands(parseInfo(blockInfo(v, src)), blockContent(v, src))
			if err != nil {
				walkErr = fmt.Errorf("%s block at line %d: %w", blockInfo(v, src), lineOf(v, src), err)
				return ast.WalkStop, nil
			}
			s.Commands = append(s.Commands, cmds...)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	return s, nil
}

// fenceInfo is the parsed info string of a fenced block: the language,
// bare words, and key=value options.
type fenceInfo struct {
	lang    string
	words   map[string]bool
	options map[string]string
}

func parseInfo(info string) fenceInfo {
	fi := fenceInfo{words: map[string]bool{}, options: map[string]string{}}
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return fi
	}
	fi.lang = fields[0]
	for _, f := range fields[1:] {
		if k, v, ok := strings.Cut(f, "="); ok {
			fi.options[k] = v
		} else {
			fi.words[f] = true
		}
	}
	return fi
}

func blockCommands(fi fenceInfo, content string) ([]Command, error) {
	switch {
	case fi.lang == "yaml" && fi.words["specscript"]:
		block, err := Parse(content)
		if err != nil {
			return nil, err
		}
		return block.Commands, nil
	case fi.lang == "yaml" && fi.options["file"] != "":
		arg := node.ObjectOf("name", fi.options["file"], "content", content)
		return []Command{{Name: TempFileCommand, Arg: arg}}, nil
	case fi.lang == "answers" || (fi.lang == "yaml" && fi.words["answers"]):
		answers, err := node.Parse(content)
		if err != nil {
			return nil, err
		}
		if answers == nil {
			return nil, nil
		}
		return []Command{{Name: AnswersCommand, Arg: answers}}, nil
	case fi.lang == "shell" && fi.words["ignore"]:
		return nil, nil
	case fi.lang == "shell" && fi.words["cli"]:
		arg := node.ObjectOf("command", strings.TrimSpace(content))
		if cd := fi.options["cd"]; cd != "" {
			arg.Set("cd", cd)
		}
		return []Command{{Name: CliCommand, Arg: arg}}, nil
	case fi.lang == "shell":
		arg := node.ObjectOf("command", strings.TrimSpace(content), "show output", fi.options["show_output"] != "false")
		if fi.options["show_command"] == "true" {
			arg.Set("show command", true)
		}
		if cd := fi.options["cd"]; cd != "" {
			arg.Set("cd", cd)
		}
		return []Command{{Name: ShellCommand, Arg: arg}}, nil
	case fi.lang == "output":
		return []Command{{Name: ExpectedConsoleOutput, Arg: content}}, nil
	}
	return nil, nil
}

func quoteText(q *ast.Blockquote, src []byte) string {
	var paras []string
	for c := q.FirstChild(); c != nil; c = c.NextSibling() {
		var buf bytes.Buffer
		lines := c.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		if t := strings.TrimSpace(buf.String()); t != "" {
			paras = append(paras, t)
		}
	}
	return strings.Join(paras, "\n\n")
}

func headingText(h *ast.Heading, src []byte) string {
	var buf bytes.Buffer
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
		}
	}
	return strings.TrimSpace(buf.String())
}

func blockInfo(b *ast.FencedCodeBlock, src []byte) string {
	if b.Info == nil {
		return ""
	}
	return strings.TrimSpace(string(b.Info.Segment.Value(src)))
}

func blockContent(b *ast.FencedCodeBlock, src []byte) string {
	var buf bytes.Buffer
	lines := b.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

func lineOf(b *ast.FencedCodeBlock, src []byte) int {
	lines := b.Lines()
	if lines.Len() == 0 {
		return 0
	}
	return bytes.Count(src[:lines.At(0).Start], []byte("\n")) + 1
}
