package stream

import (
	"fmt"
	"strings"
)

const (
	// maxOutputLines is the line count above which a block's output is
	// collapsed around a truncation marker.
	maxOutputLines = 10000

	// keepLines is how many lines survive at each end after collapsing.
	keepLines = 5000

	// MaxOutputBytes is the hard per-block output ceiling.
	MaxOutputBytes = 10 << 20 // 10 MB
)

// ApplyLimits enforces the cumulative output ceilings on a block's
// output: first the line collapse, then the hard byte cap.
func ApplyLimits(output string) string {
	return truncateBytes(truncateLines(output))
}

// truncateLines keeps the first and last 5000 lines of output longer
// than 10000 lines, with a marker counting what was dropped.
func truncateLines(output string) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxOutputLines {
		return output
	}

	dropped := len(lines) - 2*keepLines

	var b strings.Builder
	b.Grow(len(output))

	for _, line := range lines[:keepLines] {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "[... %d lines truncated ...]\n", dropped)

	tail := lines[len(lines)-keepLines:]
	for i, line := range tail {
		b.WriteString(line)

		if i < len(tail)-1 {
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// truncateBytes hard-caps output at MaxOutputBytes regardless of line
// structure.
func truncateBytes(output string) string {
	if len(output) <= MaxOutputBytes {
		return output
	}

	return output[:MaxOutputBytes]
}
