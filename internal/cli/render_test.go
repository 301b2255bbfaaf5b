package cli

import (
	"strings"
	"testing"

	"playbench/pkg/ansi"
	"playbench/pkg/term"
)

func TestRenderLineKeepsText(t *testing.T) {
	line := term.Line{Runs: []term.Run{
		{Text: "ERROR", Style: ansi.Style{Fg: ansi.BasicOf(ansi.Red), Bold: true}},
		{Text: ": failed"},
	}}

	// Styling depends on the terminal profile; the text content does not.
	got := renderLine(line)
	if !strings.Contains(got, "ERROR") || !strings.Contains(got, ": failed") {
		t.Errorf("rendered = %q, want text preserved", got)
	}
}

func TestRenderLinesJoinsWithNewlines(t *testing.T) {
	lines := []term.Line{
		{Runs: []term.Run{{Text: "one"}}},
		{Runs: []term.Run{{Text: "two"}}},
	}
	if got := renderLines(lines); got != "one\ntwo\n" {
		t.Errorf("rendered = %q, want %q", got, "one\ntwo\n")
	}
}

func TestTermColor(t *testing.T) {
	tests := []struct {
		name  string
		color ansi.Color
		want  string
		ok    bool
	}{
		{"default", ansi.Color{}, "", false},
		{"basic", ansi.BasicOf(ansi.Red), "1", true},
		{"bright", ansi.BasicOf(ansi.BrightCyan), "14", true},
		{"rgb", ansi.RGB(255, 128, 0), "#ff8000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := termColor(tt.color)
			if ok != tt.ok || string(got) != tt.want {
				t.Errorf("termColor = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
