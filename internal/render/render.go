// Package render turns command blocks and parsed spans into terminal
// output for the CLI.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/convocli/convocli/internal/ansi"
	"github.com/convocli/convocli/internal/block"
)

// fgAttrs maps parser palette colors to fatih/color foreground attributes.
var fgAttrs = map[ansi.Color]color.Attribute{
	ansi.Black:         color.FgBlack,
	ansi.Red:           color.FgRed,
	ansi.Green:         color.FgGreen,
	ansi.Yellow:        color.FgYellow,
	ansi.Blue:          color.FgBlue,
	ansi.Magenta:       color.FgMagenta,
	ansi.Cyan:          color.FgCyan,
	ansi.White:         color.FgWhite,
	ansi.BrightBlack:   color.FgHiBlack,
	ansi.BrightRed:     color.FgHiRed,
	ansi.BrightGreen:   color.FgHiGreen,
	ansi.BrightYellow:  color.FgHiYellow,
	ansi.BrightBlue:    color.FgHiBlue,
	ansi.BrightMagenta: color.FgHiMagenta,
	ansi.BrightCyan:    color.FgHiCyan,
	ansi.BrightWhite:   color.FgHiWhite,
}

// bgAttrs maps parser palette colors to background attributes.
var bgAttrs = map[ansi.Color]color.Attribute{
	ansi.Black:         color.BgBlack,
	ansi.Red:           color.BgRed,
	ansi.Green:         color.BgGreen,
	ansi.Yellow:        color.BgYellow,
	ansi.Blue:          color.BgBlue,
	ansi.Magenta:       color.BgMagenta,
	ansi.Cyan:          color.BgCyan,
	ansi.White:         color.BgWhite,
	ansi.BrightBlack:   color.BgHiBlack,
	ansi.BrightRed:     color.BgHiRed,
	ansi.BrightGreen:   color.BgHiGreen,
	ansi.BrightYellow:  color.BgHiYellow,
	ansi.BrightBlue:    color.BgHiBlue,
	ansi.BrightMagenta: color.BgHiMagenta,
	ansi.BrightCyan:    color.BgHiCyan,
	ansi.BrightWhite:   color.BgHiWhite,
}

func spanColor(s ansi.Span) *color.Color {
	attrs := make([]color.Attribute, 0, 4)

	if attr, ok := fgAttrs[s.Foreground]; ok {
		attrs = append(attrs, attr)
	}
	if attr, ok := bgAttrs[s.Background]; ok {
		attrs = append(attrs, attr)
	}
	if s.Bold {
		attrs = append(attrs, color.Bold)
	}
	if s.Underline {
		attrs = append(attrs, color.Underline)
	}

	return color.New(attrs...)
}

// Styled re-applies spans over plain text. Unstyled gaps pass through
// untouched; when colors are globally disabled the result equals plain.
func Styled(plain string, spans []ansi.Span) string {
	if len(spans) == 0 {
		return plain
	}

	var b strings.Builder
	b.Grow(len(plain) + 16*len(spans))

	pos := 0
	for _, span := range spans {
		if span.Start < pos || span.End > len(plain) || span.Start >= span.End {
			continue
		}

		b.WriteString(plain[pos:span.Start])
		b.WriteString(spanColor(span).Sprint(plain[span.Start:span.End]))
		pos = span.End
	}

	b.WriteString(plain[pos:])

	return b.String()
}

// Status glyphs shown in block headers.
const (
	glyphPending   = "…"
	glyphExecuting = "▶"
	glyphSuccess   = "✓"
	glyphFailure   = "✗"
	glyphCanceled  = "⊘"
)

// StatusGlyph returns the header glyph for a status, colorized when
// colors are enabled.
func StatusGlyph(s block.Status) string {
	switch s {
	case block.StatusPending:
		return color.New(color.FgHiBlack).Sprint(glyphPending)
	case block.StatusExecuting:
		return color.New(color.FgCyan).Sprint(glyphExecuting)
	case block.StatusSuccess:
		return color.New(color.FgGreen).Sprint(glyphSuccess)
	case block.StatusFailure:
		return color.New(color.FgRed).Sprint(glyphFailure)
	case block.StatusCanceled:
		return color.New(color.FgYellow).Sprint(glyphCanceled)
	default:
		return "?"
	}
}

// Header formats one block's summary line, truncated to width terminal
// cells. Wide runes (CJK, emoji) count by display width, not bytes.
func Header(b *block.Block, width int) string {
	meta := b.WorkingDirectory

	if d := Duration(b); d != "" {
		meta += "  " + d
	}

	line := fmt.Sprintf("%s %s  (%s)", StatusGlyph(b.Status), b.Command, meta)

	return runewidth.Truncate(line, width, "…")
}

// Duration formats the block's elapsed time, empty before execution ends.
func Duration(b *block.Block) string {
	if b.EndTime == nil {
		return ""
	}

	d := b.EndTime.Sub(b.StartTime).Round(time.Millisecond)
	if d < 0 {
		return ""
	}

	return d.String()
}

// Summary renders a block for history listings: header plus output,
// with collapsed blocks showing only the header.
func Summary(b *block.Block, width int) string {
	var sb strings.Builder

	sb.WriteString(Header(b, width))
	sb.WriteByte('\n')

	if !b.IsExpanded || b.Output == "" {
		return sb.String()
	}

	plain, spans := ansi.Parse(b.Output)
	sb.WriteString(Styled(plain, spans))

	if !strings.HasSuffix(plain, "\n") {
		sb.WriteByte('\n')
	}

	return sb.String()
}
