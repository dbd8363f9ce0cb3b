// Package errors provides structured CLI error types for convocli.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes for CLI errors.
const (
	ExitSuccess   = 0  // Successful execution
	ExitGeneral   = 1  // General error
	ExitSession   = 2  // Session/PTY error
	ExitConfig    = 4  // Configuration error
	ExitTimeout   = 5  // Execution timeout
	ExitExecution = 6  // Execution failure
	ExitUsage     = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// ShellNotFound returns an error when the configured shell binary is missing.
func ShellNotFound(shell string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Shell not found: %s", shell),
		Hint:    "Set session.shell in ~/.config/convocli/config.yaml or export CONVOCLI_SESSION_SHELL",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// SessionStartFailed returns an error when the PTY session cannot start.
func SessionStartFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Failed to start shell session",
		Hint:    "Check that the configured shell works outside convocli",
		Cause:   cause,
		Code:    ExitSession,
	}
}

// SessionBusy returns an error when a command is submitted while
// another is still executing.
func SessionBusy(command string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Cannot run %q: a command is still executing", command),
		Hint:    "Wait for the current command to finish or cancel it first",
		Code:    ExitUsage,
	}
}

// InvalidCommand returns an error for rejected command text.
func InvalidCommand(cause error) *CLIError {
	return &CLIError{
		Message: "Invalid command",
		Cause:   cause,
		Code:    ExitUsage,
	}
}

// SessionNotFound returns an error for an unknown session id.
func SessionNotFound(sessionID string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Session not found: %s", sessionID),
		Hint:    "Run 'convocli history --sessions' to list stored sessions",
		Code:    ExitGeneral,
	}
}

// ProfileNotFound returns an error for an unknown shell profile.
func ProfileNotFound(name string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Profile not found: %s", name),
		Hint:    "Run 'convocli profile list' to see available profiles",
		Code:    ExitConfig,
	}
}

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your convocli config directory",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// HistoryFailed returns an error for history read/write failures.
func HistoryFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s history", operation),
		Hint:    "Check file permissions for ~/.config/convocli/history",
		Cause:   cause,
		Code:    ExitGeneral,
	}
}

// CancelFailed returns an error when a running command cannot be canceled.
func CancelFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Failed to cancel the running command",
		Hint:    "The shell process may already have exited",
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// UpdateFailed returns an error for self-update failures.
func UpdateFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Failed to update convocli",
		Hint:    "Check your network connection, or download the release manually",
		Cause:   cause,
		Code:    ExitGeneral,
	}
}
