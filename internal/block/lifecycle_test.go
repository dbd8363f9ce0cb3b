package block

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(slog.New(slog.DiscardHandler))
}

func TestCreateStartsPending(t *testing.T) {
	m := newTestManager()

	b, err := m.Create("echo hello", "/home/user")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if b.Status != StatusPending {
		t.Errorf("Status = %v, want PENDING", b.Status)
	}
	if b.ID == "" {
		t.Error("ID is empty")
	}
	if b.WorkingDirectory != "/home/user" {
		t.Errorf("WorkingDirectory = %q", b.WorkingDirectory)
	}
	if b.ExitCode != nil {
		t.Errorf("ExitCode = %v, want nil", *b.ExitCode)
	}
	if b.StartTime.IsZero() {
		t.Error("StartTime is zero")
	}
}

func TestCreateRejectsEmptyCommand(t *testing.T) {
	m := newTestManager()

	_, err := m.Create("", "/")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create(\"\") error = %v, want ValidationError", err)
	}
}

func TestCreateRejectsOversizedCommand(t *testing.T) {
	m := newTestManager()

	if _, err := m.Create(strings.Repeat("a", MaxCommandLength), "/"); err != nil {
		t.Fatalf("Create() at limit error = %v", err)
	}

	_, err := m.Create(strings.Repeat("a", MaxCommandLength+1), "/")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create() over limit error = %v, want ValidationError", err)
	}
}

func TestHappyPathToSuccess(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("echo hello", "/")

	if _, err := m.MarkExecuting(b.ID); err != nil {
		t.Fatalf("MarkExecuting() error = %v", err)
	}

	if _, err := m.AppendOutput(b.ID, "hello\n"); err != nil {
		t.Fatalf("AppendOutput() error = %v", err)
	}

	done, err := m.Complete(b.ID, 0)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if done.Status != StatusSuccess {
		t.Errorf("Status = %v, want SUCCESS", done.Status)
	}
	if done.ExitCode == nil || *done.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", done.ExitCode)
	}
	if done.EndTime == nil {
		t.Error("EndTime not set on terminal transition")
	}
	if done.Output != "hello\n" {
		t.Errorf("Output = %q", done.Output)
	}
}

func TestNonZeroExitIsFailure(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("cat missing.txt", "/")
	_, _ = m.MarkExecuting(b.ID)
	_, _ = m.AppendOutput(b.ID, "cat: missing.txt: No such file or directory\n")

	done, err := m.Complete(b.ID, 1)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if done.Status != StatusFailure {
		t.Errorf("Status = %v, want FAILURE", done.Status)
	}
	if done.ExitCode == nil || *done.ExitCode != 1 {
		t.Errorf("ExitCode = %v, want 1", done.ExitCode)
	}
}

func TestCompleteTwiceIsTransitionError(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("true", "/")
	_, _ = m.MarkExecuting(b.ID)
	_, _ = m.Complete(b.ID, 0)

	_, err := m.Complete(b.ID, 0)

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("second Complete() error = %v, want TransitionError", err)
	}
	if terr.From != StatusSuccess {
		t.Errorf("TransitionError.From = %v, want SUCCESS", terr.From)
	}
}

func TestMarkExecutingFromNonPending(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("true", "/")
	_, _ = m.MarkExecuting(b.ID)

	_, err := m.MarkExecuting(b.ID)

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("MarkExecuting() on EXECUTING error = %v, want TransitionError", err)
	}
}

func TestCancelPendingIsTransitionError(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("sleep 100", "/")

	_, err := m.Cancel(b.ID)

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("Cancel() on PENDING error = %v, want TransitionError", err)
	}
}

func TestCancelPreservesPartialOutput(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("yes", "/")
	_, _ = m.MarkExecuting(b.ID)
	_, _ = m.AppendOutput(b.ID, "y\ny\ny\n")

	done, err := m.Cancel(b.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	if done.Status != StatusCanceled {
		t.Errorf("Status = %v, want CANCELED", done.Status)
	}
	if done.ExitCode == nil || *done.ExitCode != CanceledExitCode {
		t.Errorf("ExitCode = %v, want %d", done.ExitCode, CanceledExitCode)
	}
	if done.Output != "y\ny\ny\n" {
		t.Errorf("Output = %q, partial output must survive cancel", done.Output)
	}
}

func TestLateOutputDroppedAfterTerminal(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("true", "/")
	_, _ = m.MarkExecuting(b.ID)
	_, _ = m.AppendOutput(b.ID, "before\n")
	_, _ = m.Complete(b.ID, 0)

	after, err := m.AppendOutput(b.ID, "late\n")
	if err != nil {
		t.Fatalf("AppendOutput() after terminal error = %v, want dropped-not-error", err)
	}

	if after.Output != "before\n" {
		t.Errorf("Output = %q, late output must be dropped", after.Output)
	}
}

func TestAppendOutputOnPendingIsTransitionError(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("true", "/")

	_, err := m.AppendOutput(b.ID, "eager\n")

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("AppendOutput() on PENDING error = %v, want TransitionError", err)
	}
}

func TestToggleExpansionWorksInAnyState(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("true", "/")

	toggled, err := m.ToggleExpansion(b.ID)
	if err != nil {
		t.Fatalf("ToggleExpansion() error = %v", err)
	}
	if toggled.IsExpanded {
		t.Error("IsExpanded = true after toggle from default true")
	}

	_, _ = m.MarkExecuting(b.ID)
	_, _ = m.Complete(b.ID, 0)

	toggled, err = m.ToggleExpansion(b.ID)
	if err != nil {
		t.Fatalf("ToggleExpansion() on terminal block error = %v", err)
	}
	if !toggled.IsExpanded {
		t.Error("IsExpanded = false after second toggle")
	}
	if toggled.Status != StatusSuccess {
		t.Errorf("Status = %v, expansion must not touch the state machine", toggled.Status)
	}
}

func TestUnknownIDIsNotFound(t *testing.T) {
	m := newTestManager()

	var nferr *NotFoundError
	if _, err := m.MarkExecuting("nope"); !errors.As(err, &nferr) {
		t.Errorf("MarkExecuting(unknown) error = %v, want NotFoundError", err)
	}
	if _, err := m.Complete("nope", 0); !errors.As(err, &nferr) {
		t.Errorf("Complete(unknown) error = %v, want NotFoundError", err)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	m := newTestManager()

	b, _ := m.Create("true", "/")
	b.Command = "mutated"
	b.Status = StatusSuccess

	fresh, err := m.Get(b.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if fresh.Command != "true" || fresh.Status != StatusPending {
		t.Error("mutating a snapshot leaked into the canonical block")
	}
}

func TestListPreservesCreationOrder(t *testing.T) {
	m := newTestManager()

	first, _ := m.Create("first", "/")
	second, _ := m.Create("second", "/")

	blocks := m.List()
	if len(blocks) != 2 {
		t.Fatalf("List() len = %d, want 2", len(blocks))
	}
	if blocks[0].ID != first.ID || blocks[1].ID != second.ID {
		t.Error("List() order does not match creation order")
	}
}

func TestRestoreCancelsInFlightBlocks(t *testing.T) {
	m := newTestManager()

	stale := &Block{
		ID:        "stale-1",
		Command:   "sleep 9999",
		Status:    StatusExecuting,
		StartTime: time.Now().Add(-time.Hour),
	}

	restored := m.Restore(stale)

	if restored.Status != StatusCanceled {
		t.Errorf("Status = %v, want CANCELED after restore", restored.Status)
	}
	if restored.ExitCode == nil || *restored.ExitCode != CanceledExitCode {
		t.Errorf("ExitCode = %v, want sentinel", restored.ExitCode)
	}
	if restored.EndTime == nil {
		t.Error("EndTime not set on restored block")
	}
}

func TestRestoreKeepsTerminalBlocks(t *testing.T) {
	m := newTestManager()

	code := 0
	end := time.Now()
	done := &Block{
		ID:       "done-1",
		Command:  "true",
		Status:   StatusSuccess,
		ExitCode: &code,
		EndTime:  &end,
	}

	restored := m.Restore(done)
	if restored.Status != StatusSuccess {
		t.Errorf("Status = %v, want SUCCESS preserved", restored.Status)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusExecuting, StatusSuccess, StatusFailure, StatusCanceled} {
		parsed, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) error = %v", s, err)
		}
		if parsed != s {
			t.Errorf("ParseStatus(%q) = %v", s, parsed)
		}
	}

	if _, err := ParseStatus("BOGUS"); err == nil {
		t.Error("ParseStatus(\"BOGUS\") error = nil, want error")
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusExecuting, false},
		{StatusSuccess, true},
		{StatusFailure, true},
		{StatusCanceled, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%v.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
