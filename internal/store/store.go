// Package store persists command blocks to per-session JSONL files.
//
// The write path is append-only: every insert or update appends a full
// block snapshot, and the read path keeps the last snapshot per block
// id. That makes writes crash-safe without any rewrite-in-place logic,
// at the cost of re-reading superseded lines on load.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/convocli/convocli/internal/block"
)

const (
	blocksFileName = "blocks.jsonl"
	metaFileName   = "meta.json"

	defaultRetentionHours = 24 * 30
)

// Record is one persisted block snapshot line.
type Record struct {
	SessionID string       `json:"sessionId"`
	Seq       uint64       `json:"seq"`
	TS        time.Time    `json:"ts"`
	Block     *block.Block `json:"block"`
}

// Meta stores session metadata for discovery and pruning.
type Meta struct {
	SessionID string     `json:"sessionId"`
	Shell     string     `json:"shell,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Options controls store behavior.
type Options struct {
	SessionID string
	Dir       string
	Shell     string
}

// Store appends block snapshots for one session.
type Store struct {
	mu sync.Mutex

	sessionID string
	shell     string
	dir       string
	seq       uint64
	startedAt time.Time

	file   *os.File
	bw     *bufio.Writer
	closed bool
}

// New creates a block store for one session.
func New(opts Options) (*Store, error) {
	if err := validateSessionID(opts.SessionID); err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		var err error

		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}

	sessionDir := filepath.Join(dir, opts.SessionID)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(sessionDir, blocksFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // sessionDir/sessionID are validated and controlled
	if err != nil {
		return nil, fmt.Errorf("open block history: %w", err)
	}

	s := &Store{
		sessionID: opts.SessionID,
		shell:     opts.Shell,
		dir:       sessionDir,
		startedAt: time.Now().UTC(),
		file:      f,
		bw:        bufio.NewWriterSize(f, 64*1024),
	}

	if err := s.writeMeta(&Meta{
		SessionID: opts.SessionID,
		Shell:     opts.Shell,
		StartedAt: s.startedAt,
	}); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) writeMeta(meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write session meta: %w", err)
	}

	return nil
}

// SessionID returns the store's session id.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Insert persists a newly created block.
func (s *Store) Insert(b *block.Block) error {
	return s.append(b)
}

// Update persists the current state of an existing block. Because the
// file is append-only, Update and Insert are the same write; the read
// path resolves which snapshot is current.
func (s *Store) Update(b *block.Block) error {
	return s.append(b)
}

func (s *Store) append(b *block.Block) error {
	if b == nil {
		return errors.New("block is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("block store is closed")
	}

	s.seq++
	rec := Record{
		SessionID: s.sessionID,
		Seq:       s.seq,
		TS:        time.Now().UTC(),
		Block:     b,
	}

	line, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal block record: %w", err)
	}

	line = append(line, '\n')
	if _, err := s.bw.Write(line); err != nil {
		return fmt.Errorf("encode block record: %w", err)
	}

	if err := s.bw.Flush(); err != nil {
		return fmt.Errorf("flush block record: %w", err)
	}

	return nil
}

// DeleteAll discards every block persisted for this session.
func (s *Store) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("block store is closed")
	}

	if err := s.bw.Flush(); err != nil {
		return fmt.Errorf("flush before delete: %w", err)
	}

	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate block history: %w", err)
	}

	if _, err := s.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind block history: %w", err)
	}

	s.bw.Reset(s.file)
	s.seq = 0

	return nil
}

// QueryRecent returns up to limit of this session's blocks, oldest
// first, resolved to their latest persisted snapshot.
func (s *Store) QueryRecent(limit int) ([]*block.Block, error) {
	s.mu.Lock()
	if err := s.bw.Flush(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("flush block history: %w", err)
	}
	s.mu.Unlock()

	blocks, err := readBlocksFile(filepath.Join(s.dir, blocksFileName))
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(blocks) > limit {
		blocks = blocks[len(blocks)-limit:]
	}

	return blocks, nil
}

// Close flushes pending writes and stamps the session closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	now := time.Now().UTC()

	var errs []error
	if err := s.writeMeta(&Meta{
		SessionID: s.sessionID,
		Shell:     s.shell,
		StartedAt: s.startedAt,
		ClosedAt:  &now,
	}); err != nil {
		errs = append(errs, err)
	}

	if s.bw != nil {
		if err := s.bw.Flush(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if sessionID != filepath.Base(sessionID) || strings.Contains(sessionID, "..") || strings.ContainsAny(sessionID, `/\`) {
		return errors.New("invalid session id")
	}

	return nil
}
