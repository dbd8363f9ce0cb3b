package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/convocli/convocli/internal/block"
)

// Session describes one stored session.
type Session struct {
	SessionID string
	Shell     string
	Path      string
	StartedAt time.Time
	ClosedAt  *time.Time
}

// ListSessions returns stored sessions sorted by newest start time first.
func ListSessions(rootDir string) ([]Session, error) {
	if rootDir == "" {
		var err error

		rootDir, err = DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve history root directory: %w", err)
		}
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list history sessions: %w", err)
	}

	sessions := make([]Session, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())

		data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
		if err != nil {
			continue
		}

		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		sessions = append(sessions, Session{
			SessionID: meta.SessionID,
			Shell:     meta.Shell,
			Path:      dir,
			StartedAt: meta.StartedAt,
			ClosedAt:  meta.ClosedAt,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	return sessions, nil
}

// ReadBlocks reads a session's blocks, oldest first, resolving each
// block to its latest persisted snapshot.
func ReadBlocks(rootDir, sessionID string) ([]*block.Block, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	if rootDir == "" {
		var err error

		rootDir, err = DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve history root directory: %w", err)
		}
	}

	return readBlocksFile(filepath.Join(rootDir, sessionID, blocksFileName))
}

// readBlocksFile scans an append-only JSONL file and keeps, per block
// id, the last snapshot seen, preserving first-appearance order.
// Unparseable lines (a torn write from a crash) are skipped.
func readBlocksFile(path string) (blocks []*block.Block, err error) {
	file, err := os.Open(path) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open block history: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	index := make(map[string]int)

	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(trimmed, &rec); err != nil || rec.Block == nil {
			continue
		}

		if at, seen := index[rec.Block.ID]; seen {
			blocks[at] = rec.Block
			continue
		}

		index[rec.Block.ID] = len(blocks)
		blocks = append(blocks, rec.Block)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scan block history: %w", err)
	}

	return blocks, nil
}

// PruneOlderThan removes session directories older than the cutoff.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	sessions, err := ListSessions(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, session := range sessions {
		referenceTime := session.StartedAt
		if session.ClosedAt != nil {
			referenceTime = *session.ClosedAt
		}

		if referenceTime.Before(cutoff) {
			if err := os.RemoveAll(session.Path); err != nil {
				return removed, fmt.Errorf("prune session %q: %w", session.SessionID, err)
			}

			removed++
		}
	}

	return removed, nil
}

// DeleteSession removes one stored session and everything in it.
func DeleteSession(rootDir, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	if rootDir == "" {
		var err error

		rootDir, err = DefaultDir()
		if err != nil {
			return fmt.Errorf("resolve history root directory: %w", err)
		}
	}

	dir := filepath.Join(rootDir, sessionID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session %q not found", sessionID)
		}

		return fmt.Errorf("stat session %q: %w", sessionID, err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete session %q: %w", sessionID, err)
	}

	return nil
}

// DefaultRetention returns the default prune window.
func DefaultRetention() time.Duration {
	return defaultRetentionHours * time.Hour
}
