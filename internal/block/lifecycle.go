package block

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/convocli/convocli/internal/stream"
)

// ValidationError rejects malformed input on Create. The caller must
// not proceed to execution.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid command: " + e.Reason
}

// TransitionError reports an illegal lifecycle transition. It
// indicates a caller bug, not a runtime condition, so it is surfaced
// loudly rather than swallowed.
type TransitionError struct {
	ID   string
	From Status
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("block %s: cannot %s from %s", e.ID, e.Op, e.From)
}

// NotFoundError reports an operation against an unknown block id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "block not found: " + e.ID
}

// Manager owns every block of a session and enforces the transition
// guards. All methods return snapshots; canonical blocks never escape.
type Manager struct {
	mu     sync.Mutex
	blocks map[string]*Block
	order  []string

	logger *slog.Logger
	now    func() time.Time
}

// NewManager builds an empty Manager logging through logger.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		blocks: make(map[string]*Block),
		logger: logger.With(slog.String("component", "block")),
		now:    time.Now,
	}
}

// Create validates the command text and registers a new PENDING block.
func (m *Manager) Create(command, workingDir string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := newBlock(command, workingDir, m.now())
	if err != nil {
		return nil, err
	}

	m.blocks[b.ID] = b
	m.order = append(m.order, b.ID)

	return b.clone(), nil
}

// MarkExecuting transitions a PENDING block to EXECUTING.
func (m *Manager) MarkExecuting(id string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	if b.Status != StatusPending {
		return nil, &TransitionError{ID: id, From: b.Status, Op: "markExecuting"}
	}

	b.Status = StatusExecuting

	return b.clone(), nil
}

// AppendOutput concatenates chunk data onto an EXECUTING block, then
// re-applies the output ceilings. Output arriving after the block went
// terminal is dropped with a warning; scheduling races with the
// terminal backend make that a legitimate occurrence, not an error.
func (m *Manager) AppendOutput(id, data string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	if b.Status.IsTerminal() {
		m.logger.Warn("dropping late output for terminal block",
			slog.String("event.type", "block.output.late"),
			slog.String("block.id", id),
			slog.String("block.status", b.Status.String()),
			slog.Int("bytes", len(data)))

		return b.clone(), nil
	}

	if b.Status != StatusExecuting {
		return nil, &TransitionError{ID: id, From: b.Status, Op: "appendOutput"}
	}

	b.Output = stream.ApplyLimits(b.Output + data)

	return b.clone(), nil
}

// Complete transitions an EXECUTING block to SUCCESS (exit code zero)
// or FAILURE (anything else) and stamps the end time.
func (m *Manager) Complete(id string, exitCode int) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	if b.Status != StatusExecuting {
		return nil, &TransitionError{ID: id, From: b.Status, Op: "complete"}
	}

	if exitCode == 0 {
		b.Status = StatusSuccess
	} else {
		b.Status = StatusFailure
	}

	b.ExitCode = &exitCode
	end := m.now()
	b.EndTime = &end

	return b.clone(), nil
}

// Cancel transitions an EXECUTING block to CANCELED, recording the
// sentinel exit code. Canceling a block that never started executing
// is a transition error.
func (m *Manager) Cancel(id string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	if b.Status != StatusExecuting {
		return nil, &TransitionError{ID: id, From: b.Status, Op: "cancel"}
	}

	b.Status = StatusCanceled
	code := CanceledExitCode
	b.ExitCode = &code
	end := m.now()
	b.EndTime = &end

	return b.clone(), nil
}

// ToggleExpansion flips the display flag. Allowed in any state; it
// never touches the status machine.
func (m *Manager) ToggleExpansion(id string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	b.IsExpanded = !b.IsExpanded

	return b.clone(), nil
}

// Get returns a snapshot of one block.
func (m *Manager) Get(id string) (*Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.blocks[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	return b.clone(), nil
}

// List returns snapshots of every block in creation order.
func (m *Manager) List() []*Block {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Block, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.blocks[id].clone())
	}

	return out
}

// Restore registers a previously persisted block. Blocks found still
// EXECUTING are transitioned to CANCELED before registration: the
// process that produced them is gone, so EXECUTING is never a valid
// post-restore state.
func (m *Manager) Restore(b *Block) *Block {
	m.mu.Lock()
	defer m.mu.Unlock()

	restored := b.clone()
	if restored.Status == StatusExecuting || restored.Status == StatusPending {
		restored.Status = StatusCanceled
		code := CanceledExitCode
		restored.ExitCode = &code

		if restored.EndTime == nil {
			end := m.now()
			restored.EndTime = &end
		}

		m.logger.Warn("restored in-flight block as canceled",
			slog.String("event.type", "block.restore.canceled"),
			slog.String("block.id", restored.ID))
	}

	m.blocks[restored.ID] = restored
	m.order = append(m.order, restored.ID)

	return restored.clone()
}
