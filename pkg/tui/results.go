package tui

import (
	"fmt"
	"io"
	"strings"

	stesting "github.com/ormasoftchile/specscript/pkg/testing"
)

// PrintTestOutput writes the results of one script's test cases.
func PrintTestOutput(w io.Writer, output *stesting.TestOutput, st Styles) {
	fmt.Fprintf(w, "\n  %s\n", st.Title.Render(output.Script))
	for _, c := range output.Cases {
		switch c.Status {
		case stesting.StatusPassed:
			fmt.Fprintf(w, "    %s %-30s %s\n", st.Passed.Render(GlyphPassed), c.Name, st.Dim.Render(fmt.Sprintf("%dms", c.DurationMs)))
		case stesting.StatusFailed:
			fmt.Fprintf(w, "    %s %-30s %s\n", st.Error.Render(GlyphFailed), c.Name, st.Dim.Render(fmt.Sprintf("%dms", c.DurationMs)))
			fmt.Fprintln(w, indentBy(c.Error, 8))
		case stesting.StatusError:
			fmt.Fprintf(w, "    %s %-30s %s\n", st.Warning.Render(GlyphError), c.Name, st.Warning.Render("ERROR"))
			fmt.Fprintln(w, indentBy(c.Error, 8))
		}
	}
}

// PrintTestSummary writes the totals of a test run.
func PrintTestSummary(w io.Writer, s stesting.TestSummary, st Styles) {
	line := fmt.Sprintf("%d test cases, %d passed, %d failed", s.Total, s.Passed, s.Failed)
	if s.Errors > 0 {
		line += fmt.Sprintf(", %d errors", s.Errors)
	}
	style := st.Passed
	if !s.OK() {
		style = st.Error
	}
	fmt.Fprintf(w, "\n  %s\n", style.Render(line))
}

func indentBy(s string, n int) string {
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+pad)
}
