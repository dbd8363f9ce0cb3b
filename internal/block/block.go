// Package block models command blocks: one submitted command, its
// accumulated output, and a lifecycle status.
//
// A block moves PENDING -> EXECUTING -> {SUCCESS, FAILURE, CANCELED}.
// The three right-hand states are terminal; nothing transitions out of
// them. All mutation goes through Manager so the transition guards
// cannot be bypassed.
package block

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxCommandLength is the upper bound on submitted command text.
// Oversized commands are rejected, never silently truncated.
const MaxCommandLength = 4096

// CanceledExitCode is the sentinel recorded when a block is canceled,
// distinguishing cancellation from a real non-zero exit.
const CanceledExitCode = -1

// Status is the lifecycle state of a command block.
type Status int

const (
	StatusPending Status = iota
	StatusExecuting
	StatusSuccess
	StatusFailure
	StatusCanceled
)

// String returns the status name used in logs and persisted records.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusExecuting:
		return "EXECUTING"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusCanceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusCanceled
}

// ParseStatus maps a persisted status name back to its value.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "PENDING":
		return StatusPending, nil
	case "EXECUTING":
		return StatusExecuting, nil
	case "SUCCESS":
		return StatusSuccess, nil
	case "FAILURE":
		return StatusFailure, nil
	case "CANCELED":
		return StatusCanceled, nil
	default:
		return StatusPending, fmt.Errorf("unknown block status %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler so persisted blocks
// carry status names, not bare ints.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(data []byte) error {
	parsed, err := ParseStatus(string(data))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// Block is one command execution record. Consumers receive copies;
// only Manager mutates the canonical instance.
type Block struct {
	ID               string     `json:"id"`
	Command          string     `json:"command"`
	Output           string     `json:"output"`
	Status           Status     `json:"status"`
	ExitCode         *int       `json:"exitCode,omitempty"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	WorkingDirectory string     `json:"workingDirectory"`
	IsExpanded       bool       `json:"isExpanded"`
}

// newBlock builds a PENDING block after validating the command text.
func newBlock(command, workingDir string, now time.Time) (*Block, error) {
	if strings.TrimSpace(command) == "" {
		return nil, &ValidationError{Reason: "command is empty"}
	}

	if len(command) > MaxCommandLength {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("command is %d characters, limit is %d", len(command), MaxCommandLength),
		}
	}

	return &Block{
		ID:               uuid.NewString(),
		Command:          command,
		Status:           StatusPending,
		StartTime:        now,
		WorkingDirectory: workingDir,
		IsExpanded:       true,
	}, nil
}

// clone returns a snapshot safe to hand to consumers.
func (b *Block) clone() *Block {
	out := *b

	if b.ExitCode != nil {
		code := *b.ExitCode
		out.ExitCode = &code
	}

	if b.EndTime != nil {
		end := *b.EndTime
		out.EndTime = &end
	}

	return &out
}
