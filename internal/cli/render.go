package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"playbench/pkg/ansi"
	"playbench/pkg/term"
)

// renderLine re-renders one terminal line's styled runs for the local
// terminal. Lipgloss handles profile degradation (truecolor, 256, plain).
func renderLine(line term.Line) string {
	var b strings.Builder
	for _, run := range line.Runs {
		if run.Style.IsZero() {
			b.WriteString(run.Text)
			continue
		}
		b.WriteString(runStyle(run.Style).Render(run.Text))
	}
	return b.String()
}

// renderLines renders a buffer snapshot as newline-joined terminal text.
func renderLines(lines []term.Line) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(renderLine(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func runStyle(s ansi.Style) lipgloss.Style {
	style := lipgloss.NewStyle().
		Bold(s.Bold).
		Faint(s.Dim).
		Italic(s.Italic).
		Underline(s.Underline).
		Blink(s.Blink).
		Reverse(s.Reverse).
		Strikethrough(s.Strikethrough)
	if c, ok := termColor(s.Fg); ok {
		style = style.Foreground(c)
	}
	if c, ok := termColor(s.Bg); ok {
		style = style.Background(c)
	}
	return style
}

func termColor(c ansi.Color) (lipgloss.Color, bool) {
	switch c.Type {
	case ansi.ColorBasic:
		return lipgloss.Color(fmt.Sprintf("%d", int(c.Basic))), true
	case ansi.ColorRGB:
		return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)), true
	default:
		return "", false
	}
}
