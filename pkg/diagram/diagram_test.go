package diagram

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/specscript/pkg/kernel/script"
)

func parse(t *testing.T, src string) *script.Script {
	t.Helper()
	s, err := script.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return s
}

func TestGenerateMermaid_LinearFlow(t *testing.T) {
	s := parse(t, "Print: hello\nOutput: done\n")

	out, err := Generate(s, "linear", FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "flowchart TD") {
		t.Error("missing flowchart header")
	}
	if !strings.Contains(out, "START([Start]) --> c1") {
		t.Errorf("missing start edge, got:\n%s", out)
	}
	if !strings.Contains(out, "c1 --> c2") {
		t.Errorf("missing sequential edge, got:\n%s", out)
	}
	if !strings.Contains(out, "c2 --> END") {
		t.Errorf("missing end edge, got:\n%s", out)
	}
	if !strings.Contains(out, `c1["Print: hello"]`) {
		t.Errorf("missing scalar argument in label, got:\n%s", out)
	}
}

func TestGenerateMermaid_If(t *testing.T) {
	s := parse(t, `If:
  item: ${x}
  equals: 1
  then:
    Print: one
  else:
    Print: other
Output: done
`)

	out, err := Generate(s, "branch", FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		`c1{"If {`,
		`c1 -->|"then"| c1_1_1`,
		`c1 -->|"else"| c1_2_1`,
		"c1_1_1 --> c2",
		"c1_2_1 --> c2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q, got:\n%s", want, out)
		}
	}
	// Both branches are covered, so there is no fall-through edge.
	if strings.Contains(out, "continue") {
		t.Errorf("unexpected continue edge, got:\n%s", out)
	}
}

func TestGenerateMermaid_Loop(t *testing.T) {
	s := parse(t, `For each:
  ${n} in: [1, 2]
  Print: ${n}
`)

	out, err := Generate(s, "loop", FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `c1[["For each"]]`) {
		t.Errorf("missing loop node, got:\n%s", out)
	}
	if !strings.Contains(out, "each ${n} in") {
		t.Errorf("missing loop label, got:\n%s", out)
	}
	// The body loops back to the For each node.
	if !strings.Contains(out, "c1_1_1 --> c1\n") {
		t.Errorf("missing loop-back edge, got:\n%s", out)
	}
}

func TestGenerateMermaid_ErrorHandlersAndExit(t *testing.T) {
	s := parse(t, `On error type:
  network:
    Print: offline
Exit: bye
Print: unreachable
`)

	out, err := Generate(s, "handlers", FormatMermaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `c1[/"On error type"/]`) {
		t.Errorf("missing handler node, got:\n%s", out)
	}
	if !strings.Contains(out, `c1 -->|"network"| c1_1_1`) {
		t.Errorf("missing error type branch, got:\n%s", out)
	}
	if !strings.Contains(out, `c2(["Exit bye"])`) || !strings.Contains(out, "c2 --> END") {
		t.Errorf("missing exit node, got:\n%s", out)
	}
}

func TestGenerateASCII(t *testing.T) {
	s := parse(t, `Print: start
When:
  - item: ${x}
    equals: 1
    then:
      Print: one
  - else:
      Print: other
`)

	out, err := Generate(s, "Decisions", FormatASCII)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Decisions", "▸ Print: start", "◇ When", " else ", "▸ Print: other"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q, got:\n%s", want, out)
		}
	}

	// Every box row of the main column has the same display width.
	widths := map[int]bool{}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "        ┌") {
			widths[runewidth.StringWidth(line)] = true
		}
	}
	if len(widths) != 1 {
		t.Errorf("step boxes have differing widths: %v\n%s", widths, out)
	}
}

func TestGenerateEmpty(t *testing.T) {
	out, err := Generate(&script.Script{}, "", FormatASCII)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Script (empty)\n" {
		t.Errorf("got %q", out)
	}
}

func TestGenerateUnsupportedFormat(t *testing.T) {
	if _, err := Generate(&script.Script{}, "x", "svg"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := Generate(nil, "x", FormatMermaid); err == nil {
		t.Error("expected error for nil script")
	}
}

func TestCenterPad(t *testing.T) {
	if got := centerPad("ab", 6); got != "  ab  " {
		t.Errorf("centerPad = %q", got)
	}
	if got := centerPad("toolong", 3); got != "toolong" {
		t.Errorf("centerPad = %q", got)
	}
}
