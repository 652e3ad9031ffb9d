package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// ReportError writes a human readable report of err: the message, its
// cause, the offending command and the script it occurred in. Unhandled
// command errors show their type and data instead.
func ReportError(w io.Writer, err error, st Styles) {
	var b strings.Builder

	var ce *engine.CommandError
	var se *engine.Error
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(&b, "%s %s\n", st.Error.Render(GlyphFailed+" Unhandled error:"), ce.Message)
		fmt.Fprintf(&b, "  %s %s\n", st.Label.Render("Type:"), ce.Type)
		if ce.Data != nil {
			fmt.Fprintf(&b, "  %s\n%s\n", st.Label.Render("Data:"), indent(st.Code.Render(node.Display(ce.Data))))
		}
		if ce.Err != nil {
			fmt.Fprintf(&b, "  %s %v\n", st.Label.Render("Caused by:"), ce.Err)
		}
		if ce.Context != "" {
			fmt.Fprintf(&b, "  %s\n", st.Dim.Render("In "+ce.Context))
		}

	case errors.As(err, &se):
		msg := se.Message
		if msg == "" && se.Err != nil {
			msg = se.Err.Error()
		}
		fmt.Fprintf(&b, "%s %s\n", st.Error.Render(GlyphFailed+" "+title(se.Kind)+":"), msg)
		if se.Message != "" && se.Err != nil {
			fmt.Fprintf(&b, "  %s %v\n", st.Label.Render("Caused by:"), se.Err)
		}
		if se.Command != nil {
			fmt.Fprintf(&b, "  %s\n%s\n", st.Label.Render("Command:"), indent(st.Code.Render(node.Display(se.Command))))
		}
		if se.Context != "" {
			fmt.Fprintf(&b, "  %s\n", st.Dim.Render("In "+se.Context))
		}

	default:
		fmt.Fprintf(&b, "%s %v\n", st.Error.Render(GlyphFailed+" Error:"), err)
	}

	io.WriteString(w, b.String())
}

func title(k engine.Kind) string {
	switch k {
	case engine.KindFormat:
		return "Script error"
	case engine.KindUnknownCommand:
		return "Unknown command"
	case engine.KindUnresolved:
		return "Unresolved variable"
	case engine.KindAssertion:
		return "Assertion failed"
	case engine.KindInternal:
		return "Internal error"
	default:
		return "Error"
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
