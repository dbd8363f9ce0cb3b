// Package workdir tracks the logically current directory of a shell
// session by inspecting submitted command text.
//
// The tracker is purely logical: it never touches the filesystem and
// never verifies that a directory exists. Commands that change
// directory indirectly (subshells, scripts, pushd) are invisible to it,
// so the tracked and actual directory can drift; that is an accepted
// limitation of command-text inspection.
package workdir

import (
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
)

var cdPattern = regexp.MustCompile(`^cd(\s+(.+))?$`)

// Tracker holds the session's current directory. Safe for concurrent
// reads; writes come only from the command-dispatch path.
type Tracker struct {
	mu          sync.RWMutex
	current     string
	home        string
	lastUpdated time.Time
	now         func() time.Time
}

// NewTracker starts tracking at start, resolving `~` against home.
func NewTracker(start, home string) *Tracker {
	return &Tracker{
		current: path.Clean(start),
		home:    path.Clean(home),
		now:     time.Now,
	}
}

// CurrentDirectory returns the tracked directory.
func (t *Tracker) CurrentDirectory() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.current
}

// LastUpdated returns when the tracked directory last changed.
func (t *Tracker) LastUpdated() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.lastUpdated
}

// OnCommandDispatched inspects one submitted command. Only top-level
// `cd` invocations move the tracked directory; everything else is a
// no-op.
func (t *Tracker) OnCommandDispatched(command string) {
	m := cdPattern.FindStringSubmatch(strings.TrimSpace(command))
	if m == nil {
		return
	}

	arg := strings.TrimSpace(m[2])

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = t.resolveLocked(arg)
	t.lastUpdated = t.now()
}

// resolveLocked maps a cd argument to the new directory.
func (t *Tracker) resolveLocked(arg string) string {
	switch {
	case arg == "":
		// Bare `cd` goes home.
		return t.home
	case arg == "~":
		return t.home
	case strings.HasPrefix(arg, "~/"):
		return path.Join(t.home, arg[2:])
	case strings.HasPrefix(arg, "/"):
		return path.Clean(arg)
	default:
		// Relative: join against the current directory. path.Join
		// cleans `.` and `..` segments without consulting the
		// filesystem.
		return path.Join(t.current, arg)
	}
}
