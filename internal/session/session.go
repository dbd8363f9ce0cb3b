// Package session orchestrates one interactive shell session: it feeds
// commands to the terminal backend, shapes the raw output into command
// blocks, detects completion, and persists every state change.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/convocli/convocli/internal/block"
	clierrors "github.com/convocli/convocli/internal/errors"
	"github.com/convocli/convocli/internal/observability"
	"github.com/convocli/convocli/internal/prompt"
	"github.com/convocli/convocli/internal/store"
	"github.com/convocli/convocli/internal/stream"
	"github.com/convocli/convocli/internal/workdir"
)

// Terminal is the backend the session writes commands to. A PTY shell
// satisfies it in production; tests substitute a fake.
type Terminal interface {
	WriteCommand(command string) error
	Interrupt() error
	KillForeground() error
	Close() error
}

// Options configures a Session.
type Options struct {
	// ID identifies the session; a UUID is generated when empty.
	ID string

	Shell      string
	WorkingDir string
	Home       string

	// Store persists block snapshots. Optional: a nil store disables
	// persistence, it never disables the session.
	Store *store.Store

	Logger *slog.Logger

	FlushInterval time.Duration
	QuietTimeout  time.Duration
	CancelGrace   time.Duration

	// ExtraPromptPatterns are user patterns appended after the
	// built-ins. They must already have passed prompt.CompilePatterns.
	ExtraPromptPatterns []string

	// OnUpdate receives a snapshot after every block change, from the
	// flush goroutine. It must not call back into the Session.
	OnUpdate func(*block.Block)
}

// Session runs the output pipeline for one shell.
type Session struct {
	id     string
	marker string

	manager   *block.Manager
	tracker   *workdir.Tracker
	processor *stream.Processor
	buffer    *stream.Buffer
	detector  *prompt.Detector

	store    *store.Store
	logger   *slog.Logger
	onUpdate func(*block.Block)

	flushInterval time.Duration
	cancelGrace   time.Duration

	mu          sync.Mutex
	term        Terminal
	activeID    string
	cancelingID string
	pendingExit *int
	accum       string
	tail        string
	cmdDone     chan struct{}
	span        trace.Span

	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a Session and starts its flush loop. Attach a terminal
// with AttachTerminal before submitting commands.
func New(opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	flush := opts.FlushInterval
	if flush <= 0 {
		flush = stream.DefaultFlushInterval * time.Millisecond
	}

	grace := opts.CancelGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	detectorOpts := []prompt.Option{}
	if opts.QuietTimeout > 0 {
		detectorOpts = append(detectorOpts, prompt.WithQuietTimeout(opts.QuietTimeout))
	}
	if len(opts.ExtraPromptPatterns) > 0 {
		detectorOpts = append(detectorOpts, prompt.WithExtraPatterns(opts.ExtraPromptPatterns))
	}

	logger = logger.With(
		slog.String("component", "session"),
		slog.String("session.id", id),
	)

	s := &Session{
		id:            id,
		marker:        fmt.Sprintf("__CONVOCLI_%s__", strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		manager:       block.NewManager(logger),
		tracker:       workdir.NewTracker(opts.WorkingDir, opts.Home),
		processor:     stream.NewProcessor(),
		buffer:        stream.NewBuffer(),
		detector:      prompt.NewDetector(detectorOpts...),
		store:         opts.Store,
		logger:        logger,
		onUpdate:      opts.OnUpdate,
		flushInterval: flush,
		cancelGrace:   grace,
		stop:          make(chan struct{}),
	}

	go s.runFlushLoop()

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// AttachTerminal wires the terminal backend. The PTY needs the session's
// output callback before the session can hold the PTY, so attachment is
// a separate step from construction.
func (s *Session) AttachTerminal(t Terminal) {
	s.mu.Lock()
	s.term = t
	s.mu.Unlock()
}

// WorkingDirectory returns the tracked logical directory.
func (s *Session) WorkingDirectory() string {
	return s.tracker.CurrentDirectory()
}

// Submit dispatches one command. It rejects submissions while another
// command is still executing.
func (s *Session) Submit(ctx context.Context, command string) (*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		return nil, clierrors.SessionBusy(command)
	}

	if s.term == nil {
		return nil, clierrors.SessionStartFailed(fmt.Errorf("no terminal attached"))
	}

	snap, err := s.manager.Create(command, s.tracker.CurrentDirectory())
	if err != nil {
		return nil, clierrors.InvalidCommand(err)
	}

	s.tracker.OnCommandDispatched(command)
	s.persistLocked(snap)

	_, span := observability.Tracer("convocli/session").Start(ctx, "session.command",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("block.id", snap.ID),
		))

	if err := s.term.WriteCommand(command); err != nil {
		span.SetStatus(codes.Error, "write failed")
		span.End()

		return nil, clierrors.Wrap(clierrors.ExitSession, "Failed to send command to shell", err)
	}

	// The trailer executes right after the command and echoes its exit
	// code behind the session marker; the flush path strips it from
	// visible output.
	if err := s.term.WriteCommand(fmt.Sprintf("echo \"%s$?\"", s.marker)); err != nil {
		span.SetStatus(codes.Error, "write failed")
		span.End()

		return nil, clierrors.Wrap(clierrors.ExitSession, "Failed to send command to shell", err)
	}

	exec, err := s.manager.MarkExecuting(snap.ID)
	if err != nil {
		span.End()
		return nil, err
	}

	s.persistLocked(exec)

	s.activeID = exec.ID
	s.cancelingID = ""
	s.pendingExit = nil
	s.accum = ""
	s.tail = ""
	s.cmdDone = make(chan struct{})
	s.span = span
	s.buffer.Start()
	s.detector.Reset()

	s.logger.Info("command dispatched",
		slog.String("event.type", "session.command.submit"),
		slog.String("block.id", exec.ID),
		slog.String("block.dir", exec.WorkingDirectory))

	s.emitLocked(exec)

	return exec, nil
}

// HandleOutput receives raw terminal output. Safe to call from the PTY
// reader goroutine.
func (s *Session) HandleOutput(p []byte) {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()

	if id == "" {
		// Prompt noise between commands belongs to no block.
		return
	}

	chunks := s.processor.Ingest(string(p), stream.Stdout, id)

	// Add queues while buffering; anything returned bypasses the batch
	// window and is delivered immediately.
	if passthrough := s.buffer.Add(chunks); len(passthrough) > 0 {
		s.mu.Lock()
		s.deliverLocked(passthrough, time.Now())
		s.mu.Unlock()
	}
}

// Cancel interrupts the executing command: graceful first, forceful
// after the grace window.
func (s *Session) Cancel(ctx context.Context) (*block.Block, error) {
	s.mu.Lock()
	id := s.activeID
	done := s.cmdDone
	term := s.term

	if id == "" {
		s.mu.Unlock()
		return nil, clierrors.New(clierrors.ExitUsage, "No command is executing").
			WithHint("Cancel only applies while a command is running")
	}

	s.cancelingID = id
	s.mu.Unlock()

	s.logger.Info("canceling command",
		slog.String("event.type", "session.command.cancel"),
		slog.String("block.id", id))

	if err := term.Interrupt(); err != nil {
		return nil, clierrors.CancelFailed(err)
	}

	select {
	case <-done:
		// The shell reacted within the grace window.
		return s.manager.Get(id)
	case <-time.After(s.cancelGrace):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := term.KillForeground(); err != nil {
		s.logger.Warn("forceful termination failed",
			slog.String("event.type", "session.cancel.force_failed"),
			slog.String("error", err.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != id {
		// Completed between the deadline and the kill.
		return s.manager.Get(id)
	}

	return s.finishLocked(id, block.CanceledExitCode, false)
}

// ToggleExpansion flips a block's display state.
func (s *Session) ToggleExpansion(id string) (*block.Block, error) {
	b, err := s.manager.ToggleExpansion(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.persistLocked(b)
	s.mu.Unlock()

	return b, nil
}

// Blocks returns snapshots of every block in creation order.
func (s *Session) Blocks() []*block.Block {
	return s.manager.List()
}

// RestoreBlocks registers previously persisted blocks, normalizing any
// still marked in-flight, and persists the normalized state.
func (s *Session) RestoreBlocks(blocks []*block.Block) []*block.Block {
	out := make([]*block.Block, 0, len(blocks))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range blocks {
		restored := s.manager.Restore(b)
		if restored.Status != b.Status {
			s.persistLocked(restored)
		}

		out = append(out, restored)
	}

	return out
}

// Close stops the flush loop and shuts down the terminal. An executing
// command is recorded as canceled.
func (s *Session) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	s.mu.Lock()
	if s.activeID != "" {
		_, _ = s.finishLocked(s.activeID, block.CanceledExitCode, false)
	}
	term := s.term
	s.term = nil
	s.mu.Unlock()

	if term == nil {
		return nil
	}

	return term.Close()
}

func (s *Session) runFlushLoop() {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			drained := s.buffer.Flush()

			s.mu.Lock()
			s.deliverLocked(drained, now)
			s.mu.Unlock()
		}
	}
}

// deliverLocked appends a batch of chunks to the active block and runs
// completion detection. Caller holds s.mu.
func (s *Session) deliverLocked(chunks []stream.Chunk, now time.Time) {
	id := s.activeID
	if id == "" {
		return
	}

	var visible strings.Builder

	for _, c := range chunks {
		s.detector.NoteOutputReceived(c.Timestamp)
		visible.WriteString(s.filterLocked(c.Data))
	}

	if text := visible.String(); text != "" {
		s.accum += text

		snap, err := s.manager.AppendOutput(id, text)
		if err != nil {
			s.logger.Warn("failed to append output",
				slog.String("event.type", "session.output.append_failed"),
				slog.String("block.id", id),
				slog.String("error", err.Error()))
		} else {
			s.persistLocked(snap)
			s.emitLocked(snap)
		}
	}

	if s.pendingExit != nil {
		_, _ = s.finishLocked(id, *s.pendingExit, false)
		return
	}

	res := s.detector.DetectAt(s.accum+s.tail, now)
	if !res.Detected {
		return
	}

	if res.ViaTimeout && s.tail != "" {
		// On timeout the held tail is real output, not a prompt.
		if snap, err := s.manager.AppendOutput(id, s.tail); err == nil {
			s.accum += s.tail
			s.persistLocked(snap)
			s.emitLocked(snap)
		}

		s.tail = ""
	}

	_, _ = s.finishLocked(id, 0, res.ViaTimeout)
}

// filterLocked splits data into complete lines, strips marker lines,
// and captures the exit code the trailer echoes. The last partial line
// is held back until its newline arrives.
func (s *Session) filterLocked(data string) string {
	s.tail += data

	idx := strings.LastIndexByte(s.tail, '\n')
	if idx < 0 {
		return ""
	}

	complete := s.tail[:idx+1]
	s.tail = s.tail[idx+1:]

	var b strings.Builder

	for _, line := range strings.SplitAfter(complete, "\n") {
		if line == "" {
			continue
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if strings.Contains(trimmed, s.marker) {
			if at := strings.Index(trimmed, s.marker); at >= 0 {
				if code, err := strconv.Atoi(trimmed[at+len(s.marker):]); err == nil {
					c := code
					s.pendingExit = &c
				}
			}

			continue
		}

		b.WriteString(line)
	}

	return b.String()
}

// finishLocked ends the active command. A sentinel exit code or an
// in-progress cancel records CANCELED; anything else completes
// normally. Caller holds s.mu.
func (s *Session) finishLocked(id string, exitCode int, viaTimeout bool) (*block.Block, error) {
	var (
		snap *block.Block
		err  error
	)

	if exitCode == block.CanceledExitCode || s.cancelingID == id {
		snap, err = s.manager.Cancel(id)
	} else {
		snap, err = s.manager.Complete(id, exitCode)
	}

	if err != nil {
		return nil, err
	}

	s.persistLocked(snap)
	s.emitLocked(snap)

	s.logger.Info("command finished",
		slog.String("event.type", "session.command.finish"),
		slog.String("block.id", id),
		slog.String("block.status", snap.Status.String()),
		slog.Bool("via_timeout", viaTimeout))

	if s.span != nil {
		s.span.SetAttributes(attribute.String("block.status", snap.Status.String()))
		if snap.Status == block.StatusFailure {
			s.span.SetStatus(codes.Error, "command failed")
		}
		s.span.End()
		s.span = nil
	}

	s.buffer.Stop()
	s.detector.Reset()
	s.activeID = ""
	s.cancelingID = ""
	s.pendingExit = nil
	s.accum = ""
	s.tail = ""

	if s.cmdDone != nil {
		close(s.cmdDone)
		s.cmdDone = nil
	}

	return snap, nil
}

// persistLocked writes a snapshot to the store. Persistence is best
// effort: failures are logged, never surfaced.
func (s *Session) persistLocked(b *block.Block) {
	if s.store == nil {
		return
	}

	if err := s.store.Update(b); err != nil {
		s.logger.Warn("failed to persist block",
			slog.String("event.type", "session.persist.failed"),
			slog.String("block.id", b.ID),
			slog.String("error", err.Error()))
	}
}

func (s *Session) emitLocked(b *block.Block) {
	if s.onUpdate != nil {
		s.onUpdate(b)
	}
}
