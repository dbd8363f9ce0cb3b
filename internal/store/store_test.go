package store

import (
	"testing"
	"time"

	"github.com/convocli/convocli/internal/block"
)

func newTestBlock(id, command string, status block.Status) *block.Block {
	return &block.Block{
		ID:        id,
		Command:   command,
		Status:    status,
		StartTime: time.Now().UTC(),
	}
}

func TestInsertAndQueryRecent(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Options{SessionID: "sess-1", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if err := s.Insert(newTestBlock("a", "echo one", block.StatusPending)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := s.Insert(newTestBlock("b", "echo two", block.StatusPending)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	blocks, err := s.QueryRecent(0)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("QueryRecent() len = %d, want 2", len(blocks))
	}
	if blocks[0].ID != "a" || blocks[1].ID != "b" {
		t.Errorf("QueryRecent() order = %s, %s", blocks[0].ID, blocks[1].ID)
	}
}

func TestUpdateLastSnapshotWins(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Options{SessionID: "sess-1", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	b := newTestBlock("a", "true", block.StatusPending)
	_ = s.Insert(b)

	b.Status = block.StatusExecuting
	_ = s.Update(b)

	code := 0
	b.Status = block.StatusSuccess
	b.ExitCode = &code
	_ = s.Update(b)

	blocks, err := s.QueryRecent(0)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("QueryRecent() len = %d, want 1 after updates", len(blocks))
	}
	if blocks[0].Status != block.StatusSuccess {
		t.Errorf("Status = %v, want latest snapshot", blocks[0].Status)
	}
	if blocks[0].ExitCode == nil || *blocks[0].ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", blocks[0].ExitCode)
	}
}

func TestQueryRecentLimitKeepsNewest(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Options{SessionID: "sess-1", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	_ = s.Insert(newTestBlock("a", "one", block.StatusSuccess))
	_ = s.Insert(newTestBlock("b", "two", block.StatusSuccess))
	_ = s.Insert(newTestBlock("c", "three", block.StatusSuccess))

	blocks, err := s.QueryRecent(2)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("QueryRecent(2) len = %d", len(blocks))
	}
	if blocks[0].ID != "b" || blocks[1].ID != "c" {
		t.Errorf("QueryRecent(2) = %s, %s, want the newest two", blocks[0].ID, blocks[1].ID)
	}
}

func TestDeleteAll(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Options{SessionID: "sess-1", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	_ = s.Insert(newTestBlock("a", "one", block.StatusSuccess))

	if err := s.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	blocks, err := s.QueryRecent(0)
	if err != nil {
		t.Fatalf("QueryRecent() error = %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("QueryRecent() len = %d after DeleteAll", len(blocks))
	}

	// The store stays usable after a wipe.
	if err := s.Insert(newTestBlock("b", "two", block.StatusSuccess)); err != nil {
		t.Fatalf("Insert() after DeleteAll error = %v", err)
	}
}

func TestReadBlocksAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Options{SessionID: "sess-1", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_ = s.Insert(newTestBlock("a", "echo persisted", block.StatusExecuting))

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	blocks, err := ReadBlocks(dir, "sess-1")
	if err != nil {
		t.Fatalf("ReadBlocks() error = %v", err)
	}
	if len(blocks) != 1 || blocks[0].Command != "echo persisted" {
		t.Fatalf("ReadBlocks() = %+v", blocks)
	}

	// The store does not rewrite history: an in-flight block reads back
	// exactly as persisted; normalization happens on restore.
	if blocks[0].Status != block.StatusExecuting {
		t.Errorf("Status = %v, want EXECUTING as written", blocks[0].Status)
	}
}

func TestReadBlocksMissingSessionIsEmpty(t *testing.T) {
	blocks, err := ReadBlocks(t.TempDir(), "absent")
	if err != nil {
		t.Fatalf("ReadBlocks() error = %v", err)
	}
	if blocks != nil {
		t.Fatalf("ReadBlocks() = %+v, want nil", blocks)
	}
}

func TestNewRejectsInvalidSessionID(t *testing.T) {
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if _, err := New(Options{SessionID: id, Dir: t.TempDir()}); err == nil {
			t.Errorf("New(%q) error = nil, want invalid session id", id)
		}
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	dir := t.TempDir()

	first, err := New(Options{SessionID: "older", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = first.Close()

	time.Sleep(10 * time.Millisecond)

	second, err := New(Options{SessionID: "newer", Dir: dir, Shell: "/bin/zsh"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = second.Close()

	sessions, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ListSessions() len = %d", len(sessions))
	}
	if sessions[0].SessionID != "newer" {
		t.Errorf("ListSessions()[0] = %s, want newest first", sessions[0].SessionID)
	}
	if sessions[0].Shell != "/bin/zsh" {
		t.Errorf("Shell = %q", sessions[0].Shell)
	}
	if sessions[0].ClosedAt == nil {
		t.Error("ClosedAt not stamped on close")
	}
}

func TestListSessionsMissingRootIsEmpty(t *testing.T) {
	sessions, err := ListSessions(t.TempDir() + "/nope")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if sessions != nil {
		t.Fatalf("ListSessions() = %+v, want nil", sessions)
	}
}

func TestPruneOlderThan(t *testing.T) {
	dir := t.TempDir()

	old, err := New(Options{SessionID: "old", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = old.Close()

	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)

	fresh, err := New(Options{SessionID: "fresh", Dir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = fresh.Close()

	removed, err := PruneOlderThan(dir, cutoff)
	if err != nil {
		t.Fatalf("PruneOlderThan() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("PruneOlderThan() removed = %d, want 1", removed)
	}

	sessions, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "fresh" {
		t.Fatalf("ListSessions() after prune = %+v", sessions)
	}
}
