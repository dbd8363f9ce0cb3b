// Package ansi parses SGR ("Select Graphic Rendition") escape sequences
// into plain text plus styled spans.
//
// Only linear text styling is modeled: the 16 standard/bright colors,
// bold, and underline. 256-color and true-color sequences are recognized
// so they strip cleanly, but produce no styling. Anything that is not a
// well-formed `ESC [ <digits>(;<digits>)* m` sequence is left in the
// output untouched — malformed input never fails, it just shows up as
// literal text.
package ansi

import "strings"

const esc = '\x1b'

// Color identifies one of the 16 SGR palette colors.
type Color int

// ColorNone marks an unset foreground or background.
const ColorNone Color = -1

// The standard palette (SGR 30-37 foreground, 40-47 background) followed
// by the bright palette (90-97 / 100-107).
const (
	Black Color = iota
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

var colorNames = [...]string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
	"bright-black", "bright-red", "bright-green", "bright-yellow",
	"bright-blue", "bright-magenta", "bright-cyan", "bright-white",
}

// String returns the palette name, or "none" for ColorNone.
func (c Color) String() string {
	if c < 0 || int(c) >= len(colorNames) {
		return "none"
	}

	return colorNames[c]
}

// Span describes one styled range of the plain (de-escaped) text.
// Start is inclusive, End exclusive, both in bytes of the plain text.
type Span struct {
	Start      int
	End        int
	Foreground Color
	Background Color
	Bold       bool
	Underline  bool
}

// style is the running SGR accumulator.
type style struct {
	fg        Color
	bg        Color
	bold      bool
	underline bool
}

var plainStyle = style{fg: ColorNone, bg: ColorNone}

func (s style) isPlain() bool {
	return s == plainStyle
}

// ContainsEscapes reports whether s contains any escape byte. It is a
// cheap pre-check so callers can skip parsing unstyled output.
func ContainsEscapes(s string) bool {
	return strings.IndexByte(s, esc) >= 0
}

// Parse splits raw into plain text and the styled spans covering it.
func Parse(raw string) (string, []Span) {
	if !ContainsEscapes(raw) {
		return raw, nil
	}

	var (
		plain     strings.Builder
		spans     []Span
		current   = plainStyle
		spanStart = 0
	)

	closeSpan := func() {
		if current.isPlain() {
			return
		}

		if end := plain.Len(); end > spanStart {
			spans = append(spans, Span{
				Start:      spanStart,
				End:        end,
				Foreground: current.fg,
				Background: current.bg,
				Bold:       current.bold,
				Underline:  current.underline,
			})
		}
	}

	i := 0
	for i < len(raw) {
		codes, width, ok := scanSGR(raw[i:])
		if !ok {
			plain.WriteByte(raw[i])
			i++

			continue
		}

		next := applyCodes(current, codes)
		if next != current {
			closeSpan()

			current = next
			spanStart = plain.Len()
		}

		i += width
	}

	closeSpan()

	return plain.String(), spans
}

// Strip removes well-formed SGR sequences from raw, leaving everything
// else (including malformed sequences) in place.
func Strip(raw string) string {
	plain, _ := Parse(raw)
	return plain
}

// scanSGR matches `ESC [ <digits>(;<digits>)* m` at the start of s.
// On success it returns the numeric code groups and the byte width of
// the whole sequence. A sequence missing its terminating 'm' (or with
// anything besides digits and ';' inside) is not consumed.
func scanSGR(s string) (codes []int, width int, ok bool) {
	if len(s) < 3 || s[0] != esc || s[1] != '[' {
		return nil, 0, false
	}

	n := 0

	for i := 2; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			n = n*10 + int(c-'0')
		case c == ';':
			// A missing parameter (e.g. "ESC[;1m") defaults to 0.
			codes = append(codes, n)
			n = 0
		case c == 'm':
			codes = append(codes, n)
			return codes, i + 1, true
		default:
			return nil, 0, false
		}
	}

	return nil, 0, false
}

// applyCodes folds one sequence's code groups into the accumulator,
// left to right. Unrecognized codes are no-ops.
func applyCodes(s style, codes []int) style {
	for i := 0; i < len(codes); i++ {
		switch code := codes[i]; {
		case code == 0:
			s = plainStyle
		case code == 1:
			s.bold = true
		case code == 4:
			s.underline = true
		case code >= 30 && code <= 37:
			s.fg = Color(code - 30)
		case code >= 90 && code <= 97:
			s.fg = Color(code-90) + BrightBlack
		case code >= 40 && code <= 47:
			s.bg = Color(code - 40)
		case code >= 100 && code <= 107:
			s.bg = Color(code-100) + BrightBlack
		case code == 38 || code == 48:
			// Extended color introducer: swallow its arguments so the
			// sequence strips cleanly, but apply no styling.
			i += extendedColorArgs(codes[i+1:])
		}
	}

	return s
}

// extendedColorArgs returns how many parameters after a 38/48 introducer
// belong to it: `5;n` for 256-color, `2;r;g;b` for true color.
func extendedColorArgs(rest []int) int {
	if len(rest) == 0 {
		return 0
	}

	switch rest[0] {
	case 5:
		if len(rest) >= 2 {
			return 2
		}

		return len(rest)
	case 2:
		if len(rest) >= 4 {
			return 4
		}

		return len(rest)
	}

	return 0
}
