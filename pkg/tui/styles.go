// Package tui renders command-line output for the terminal: styled error
// reports, test results, aligned tables and markdown.
package tui

import "github.com/charmbracelet/lipgloss"

// Status glyphs convey meaning without relying on color alone.
const (
	GlyphPassed = "✓"
	GlyphFailed = "✗"
	GlyphError  = "!"
	GlyphInfo   = "›"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

// Styles groups the styles used by the renderers. Plain styles render
// text unchanged, for redirected output and NO_COLOR terminals.
type Styles struct {
	Title   lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Passed  lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Code    lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(colorCyan),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(colorRed),
		Warning: lipgloss.NewStyle().Foreground(colorYellow),
		Passed:  lipgloss.NewStyle().Foreground(colorGreen),
		Label:   lipgloss.NewStyle().Bold(true),
		Dim:     lipgloss.NewStyle().Foreground(colorDim),
		Code: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorDim).
			PaddingLeft(1),
	}
}

// PlainStyles returns styles that add no escape sequences.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:   plain,
		Error:   plain,
		Warning: plain,
		Passed:  plain,
		Label:   plain,
		Dim:     plain,
		Code:    plain.PaddingLeft(2),
	}
}
