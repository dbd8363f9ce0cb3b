// Package prompt decides when the shell has returned to an interactive
// prompt, which is the signal that a command finished.
//
// Detection tests only the last line of accumulated output against a
// small pattern list, so a command that merely prints something
// prompt-shaped on an earlier line cannot trigger a false positive. A
// quiet-period timeout backstops shells with prompts the patterns do
// not recognize.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultQuietTimeout is how long output must stay silent, after at
// least one byte has arrived, before completion is assumed.
const DefaultQuietTimeout = 2000 * time.Millisecond

// Built-in prompt patterns, tried in order. Each must match the entire
// last line: the prompt character followed by exactly one space.
var builtinPatterns = []string{
	`^\$ $`,
	`^# $`,
	`^% $`,
	`^[\w@-]+[:][~\w/-]*[\$#%] $`,
}

// Result reports one detection attempt.
type Result struct {
	Detected       bool
	MatchedPattern string
	ViaTimeout     bool
}

// Detector watches accumulated output for a prompt. It is not safe for
// concurrent use; the session calls it from the flush path only.
type Detector struct {
	patterns []*regexp.Regexp
	sources  []string

	quietTimeout time.Duration
	sawOutput    bool
	lastOutputAt time.Time
}

// Option adjusts a Detector at construction.
type Option func(*Detector)

// WithQuietTimeout overrides the silence window for the timeout
// fallback.
func WithQuietTimeout(d time.Duration) Option {
	return func(det *Detector) {
		if d > 0 {
			det.quietTimeout = d
		}
	}
}

// WithExtraPatterns appends user-supplied patterns after the built-ins.
// Invalid expressions are rejected.
func WithExtraPatterns(exprs []string) Option {
	return func(det *Detector) {
		for _, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				continue // validated by LoadPatternFile before reaching here
			}

			det.patterns = append(det.patterns, re)
			det.sources = append(det.sources, expr)
		}
	}
}

// NewDetector builds a Detector with the built-in pattern list.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{quietTimeout: DefaultQuietTimeout}

	for _, expr := range builtinPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile(expr))
		d.sources = append(d.sources, expr)
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// NoteOutputReceived arms (first call) or resets (subsequent calls) the
// quiet-period timer.
func (d *Detector) NoteOutputReceived(ts time.Time) {
	d.sawOutput = true
	d.lastOutputAt = ts
}

// TimedOut reports whether the quiet-period fallback has fired: at
// least one byte of output, then silence for the full window.
func (d *Detector) TimedOut(now time.Time) bool {
	if !d.sawOutput {
		return false
	}

	return now.Sub(d.lastOutputAt) >= d.quietTimeout
}

// Detect tests the last line of accumulated output against the pattern
// list. A pattern match always wins over a concurrently-elapsed
// timeout; the timeout is only reported when no pattern matches.
func (d *Detector) Detect(accumulated string) Result {
	return d.DetectAt(accumulated, time.Now())
}

// DetectAt is Detect with an explicit clock, for the session tick and
// for tests.
func (d *Detector) DetectAt(accumulated string, now time.Time) Result {
	line := lastLine(accumulated)

	for i, re := range d.patterns {
		if re.MatchString(line) {
			return Result{Detected: true, MatchedPattern: d.sources[i]}
		}
	}

	if d.TimedOut(now) {
		return Result{Detected: true, ViaTimeout: true}
	}

	return Result{}
}

// Reset clears the timeout state for the next command.
func (d *Detector) Reset() {
	d.sawOutput = false
	d.lastOutputAt = time.Time{}
}

// Patterns returns the active pattern expressions in match order.
func (d *Detector) Patterns() []string {
	out := make([]string, len(d.sources))
	copy(out, d.sources)

	return out
}

// lastLine returns everything after the final newline. Trailing
// carriage returns from CRLF output are dropped so patterns anchored
// on "$ " still match.
func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}

	return strings.TrimPrefix(s, "\r")
}

// CompilePatterns validates a list of user-supplied expressions,
// returning the first compile error with its source expression.
func CompilePatterns(exprs []string) error {
	for _, expr := range exprs {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("invalid prompt pattern %q: %w", expr, err)
		}
	}

	return nil
}
