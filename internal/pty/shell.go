//go:build unix

// Package pty runs the user's shell inside a pseudo-terminal and
// delivers its raw output to the session pipeline.
package pty

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const defaultShutdownDeadline = 2 * time.Second

// etx is the ^C byte; writing it to the PTY delivers SIGINT to the
// foreground process group.
const etx = 0x03

// Options configures a Shell.
type Options struct {
	Shell string
	Dir   string
	Env   []string
	Rows  int
	Cols  int

	// OnOutput receives every chunk the shell writes, from the reader
	// goroutine. Required.
	OnOutput func([]byte)

	// OnExit is called once when the shell process ends.
	OnExit func(err error)

	Logger *slog.Logger

	// ShutdownDeadline bounds each stage of Close's escalation.
	ShutdownDeadline time.Duration
}

// Shell is a persistent shell process attached to a PTY.
type Shell struct {
	mu   sync.Mutex
	ptmx *os.File
	cmd  *exec.Cmd
	pgid int

	opts   Options
	logger *slog.Logger

	done       chan struct{}
	doneOnce   sync.Once
	readerDone chan struct{}
}

// Start spawns the shell inside a new PTY and begins pumping output.
func Start(opts Options) (*Shell, error) {
	if opts.Shell == "" {
		return nil, errors.New("shell is required")
	}

	if opts.OnOutput == nil {
		return nil, errors.New("output callback is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(opts.Shell) //nolint:gosec // the shell comes from the user's own config
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, opts.Env...)

	rows, cols := opts.Rows, opts.Cols
	if rows <= 0 {
		rows = 24
	}
	if cols <= 0 {
		cols = 80
	}

	logger.Debug("starting shell PTY",
		slog.String("component", "pty"),
		slog.String("event.type", "pty.start"),
		slog.String("pty.shell", opts.Shell))

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
	if err != nil {
		return nil, fmt.Errorf("start shell pty: %w", err)
	}

	s := &Shell{
		ptmx:       ptmx,
		cmd:        cmd,
		opts:       opts,
		logger:     logger.With(slog.String("component", "pty")),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	if cmd.Process != nil && cmd.Process.Pid > 0 {
		if pgid, pgErr := unix.Getpgid(cmd.Process.Pid); pgErr == nil {
			s.pgid = pgid
		}
	}

	go s.pumpOutput()

	return s, nil
}

// pumpOutput reads the PTY until it closes, forwarding every chunk.
func (s *Shell) pumpOutput() {
	defer close(s.readerDone)

	buf := make([]byte, 4096)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.opts.OnOutput(buf[:n])
		}

		if err != nil {
			// A closed PTY means the shell is gone; report once.
			if s.opts.OnExit != nil {
				s.opts.OnExit(err)
			}

			return
		}
	}
}

// WriteCommand sends one command line to the shell, terminated with a
// newline so the shell executes it.
func (s *Shell) WriteCommand(command string) error {
	_, err := s.Write([]byte(command + "\n"))
	return err
}

// Write sends raw bytes to the shell's input.
func (s *Shell) Write(p []byte) (int, error) {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()

	if ptmx == nil {
		return 0, errors.New("pty is closed")
	}

	n, err := ptmx.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to pty: %w", err)
	}

	return n, nil
}

// Interrupt delivers ^C to the foreground process group, the graceful
// half of cancellation.
func (s *Shell) Interrupt() error {
	_, err := s.Write([]byte{etx})
	return err
}

// KillForeground forcefully kills whatever is running in the PTY's
// foreground, sparing the shell itself when possible.
func (s *Shell) KillForeground() error {
	s.mu.Lock()
	ptmx := s.ptmx
	shellPgid := s.pgid
	s.mu.Unlock()

	if ptmx == nil {
		return errors.New("pty is closed")
	}

	fg, err := unix.IoctlGetInt(int(ptmx.Fd()), unix.TIOCGPGRP)
	if err != nil {
		return fmt.Errorf("read foreground process group: %w", err)
	}

	if fg <= 0 || fg == shellPgid {
		// Only the shell itself is in the foreground; nothing to kill.
		return nil
	}

	if err := unix.Kill(-fg, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill foreground process group: %w", err)
	}

	s.logger.Warn("forcefully killed foreground process group",
		slog.String("event.type", "pty.kill.forced"),
		slog.Int("pty.pgid", fg))

	return nil
}

// Resize updates the PTY window size.
func (s *Shell) Resize(rows, cols int) {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()

	if ptmx == nil {
		return
	}

	_ = pty.Setsize(ptmx, &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	})
}

// Alive reports whether the shell process still exists.
func (s *Shell) Alive() bool {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return false
	}

	return unix.Kill(cmd.Process.Pid, 0) == nil
}

// Close shuts the shell down: close the PTY, SIGTERM the process
// group, and SIGKILL anything that outlives the deadline.
func (s *Shell) Close() error {
	s.doneOnce.Do(func() {
		close(s.done)
	})

	s.mu.Lock()
	ptmx := s.ptmx
	cmd := s.cmd
	pgid := s.pgid
	s.ptmx = nil
	s.cmd = nil
	s.pgid = 0
	s.mu.Unlock()

	if ptmx != nil {
		_ = ptmx.Close()
	}

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	s.logger.Debug("stopping shell PTY",
		slog.String("event.type", "pty.stop"))

	waitCh := make(chan error, 1)

	go func() {
		waitCh <- cmd.Wait()
	}()

	sendSignal(cmd.Process.Pid, pgid, unix.SIGTERM)

	deadline := s.opts.ShutdownDeadline
	if deadline <= 0 {
		deadline = defaultShutdownDeadline
	}

	select {
	case <-waitCh:
	case <-time.After(deadline):
		sendSignal(cmd.Process.Pid, pgid, unix.SIGKILL)

		select {
		case <-waitCh:
		case <-time.After(deadline):
		}
	}

	<-s.readerDone

	return nil
}

func sendSignal(pid, pgid int, sig unix.Signal) {
	if pgid > 0 {
		if err := unix.Kill(-pgid, sig); err == nil || errors.Is(err, unix.ESRCH) {
			return
		}
	}

	if pid <= 0 {
		return
	}

	_ = unix.Kill(pid, sig)
}
