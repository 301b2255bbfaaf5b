// Package ansi interprets the ANSI escape sequences found in build tool
// output, turning a raw byte stream into styled text events.
//
// The parser models a scrolling build log, not a full terminal: SGR
// (color/weight) sequences update the active style, carriage returns and
// erase-line sequences become control events for progress-line redraws, and
// everything else (cursor addressing, OSC payloads, malformed sequences) is
// discarded without corrupting subsequent parsing.
package ansi

import "fmt"

// ColorType discriminates the Color representation.
type ColorType uint8

const (
	// ColorDefault is the terminal's default foreground/background.
	ColorDefault ColorType = iota
	// ColorBasic is one of the 16 named colors.
	ColorBasic
	// ColorRGB is a 24-bit color, also used for the 256-color cube.
	ColorRGB
)

// BasicColor names the 16 standard terminal colors.
type BasicColor uint8

const (
	Black BasicColor = iota
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	White
	BrightBlack
	BrightRed
	BrightGreen
	BrightYellow
	BrightBlue
	BrightMagenta
	BrightCyan
	BrightWhite
)

var basicColorNames = [...]string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
	"bright-black", "bright-red", "bright-green", "bright-yellow",
	"bright-blue", "bright-magenta", "bright-cyan", "bright-white",
}

// String returns the color name.
func (c BasicColor) String() string {
	if int(c) < len(basicColorNames) {
		return basicColorNames[c]
	}
	return "unknown"
}

// Color is a terminal color. The zero value is the terminal default.
type Color struct {
	Type    ColorType
	Basic   BasicColor
	R, G, B uint8
}

// String returns the color as a name or hex triplet, empty for the default.
func (c Color) String() string {
	switch c.Type {
	case ColorBasic:
		return c.Basic.String()
	case ColorRGB:
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	default:
		return ""
	}
}

// Basic returns a named 16-color Color.
func BasicOf(c BasicColor) Color { return Color{Type: ColorBasic, Basic: c} }

// RGB returns a 24-bit Color.
func RGB(r, g, b uint8) Color { return Color{Type: ColorRGB, R: r, G: g, B: b} }

// Style is the active graphic rendition applied to a text run.
// The zero value is unstyled default text.
type Style struct {
	Fg            Color
	Bg            Color
	Bold          bool
	Dim           bool
	Italic        bool
	Underline     bool
	Blink         bool
	Reverse       bool
	Hidden        bool
	Strikethrough bool
}

// IsZero reports whether the style is the unstyled default.
func (s Style) IsZero() bool { return s == Style{} }

// color256 maps a 256-palette index to a Color.
// Indexes 0-15 are the named colors; 16-231 the 6x6x6 cube; 232-255 grayscale.
func color256(idx uint8) Color {
	if idx < 16 {
		return BasicOf(BasicColor(idx))
	}
	if idx <= 231 {
		scale := func(i uint8) uint8 {
			if i > 0 {
				return 55 + i*40
			}
			return 0
		}
		r := scale((idx - 16) / 36)
		g := scale(((idx - 16) % 36) / 6)
		b := scale((idx - 16) % 6)
		return RGB(r, g, b)
	}
	v := (idx-232)*10 + 8
	return RGB(v, v, v)
}

// apply mutates the style per one SGR parameter list. Parameters that take
// arguments (38/48 extended colors) consume the values that follow them.
func (s *Style) apply(params []int) {
	for i := 0; i < len(params); i++ {
		switch p := params[i]; p {
		case 0:
			*s = Style{}
		case 1:
			s.Bold = true
		case 2:
			s.Dim = true
		case 3:
			s.Italic = true
		case 4:
			s.Underline = true
		case 5:
			s.Blink = true
		case 7:
			s.Reverse = true
		case 8:
			s.Hidden = true
		case 9:
			s.Strikethrough = true
		case 22:
			s.Bold, s.Dim = false, false
		case 23:
			s.Italic = false
		case 24:
			s.Underline = false
		case 25:
			s.Blink = false
		case 27:
			s.Reverse = false
		case 28:
			s.Hidden = false
		case 29:
			s.Strikethrough = false
		case 39:
			s.Fg = Color{}
		case 49:
			s.Bg = Color{}
		case 38, 48:
			color, consumed := extendedColor(params[i+1:])
			if consumed == 0 {
				// Malformed extended color; drop the rest of the sequence.
				return
			}
			if p == 38 {
				s.Fg = color
			} else {
				s.Bg = color
			}
			i += consumed
		default:
			switch {
			case p >= 30 && p <= 37:
				s.Fg = BasicOf(BasicColor(p - 30))
			case p >= 40 && p <= 47:
				s.Bg = BasicOf(BasicColor(p - 40))
			case p >= 90 && p <= 97:
				s.Fg = BasicOf(BasicColor(p - 90 + 8))
			case p >= 100 && p <= 107:
				s.Bg = BasicOf(BasicColor(p - 100 + 8))
			}
			// Unknown parameters are ignored; later ones still apply.
		}
	}
}

// extendedColor parses the arguments of a 38/48 SGR parameter:
// `5;n` (256-palette) or `2;r;g;b` (truecolor). Returns the number of
// parameters consumed, 0 if malformed.
func extendedColor(args []int) (Color, int) {
	if len(args) >= 2 && args[0] == 5 {
		return color256(clampByte(args[1])), 2
	}
	if len(args) >= 4 && args[0] == 2 {
		return RGB(clampByte(args[1]), clampByte(args[2]), clampByte(args[3])), 4
	}
	return Color{}, 0
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
