// Package errors provides sentinel errors and custom error types for arcstack.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	// ErrUsage indicates invalid input or missing configuration
	ErrUsage = errors.New("usage error")

	// ErrUserAbort indicates the user declined a confirmation prompt
	ErrUserAbort = errors.New("aborted by user")

	// ErrBranchNotFound indicates that a branch does not exist
	ErrBranchNotFound = errors.New("branch not found")

	// ErrRebaseConflict indicates that a rebase or merge encountered a conflict
	ErrRebaseConflict = errors.New("rebase conflict")

	// ErrRebaseInProgress indicates the repository is already mid-rebase
	ErrRebaseInProgress = errors.New("rebase in progress")

	// ErrChainInconsistent indicates a stack whose revisions no longer chain
	ErrChainInconsistent = errors.New("stack chain is inconsistent")

	// ErrTargetMoved indicates the root revision no longer applies to the target branch
	ErrTargetMoved = errors.New("target branch moved under the root revision")

	// ErrRemoteSubmission indicates the submit queue rejected or failed a submission
	ErrRemoteSubmission = errors.New("submit queue submission failed")

	// ErrUnexpectedValue indicates a branch window that cannot be resolved
	ErrUnexpectedValue = errors.New("unexpected value")

	// ErrCleanup indicates a temporary branch could not be removed
	ErrCleanup = errors.New("cleanup failed")
)

// UsageError is surfaced immediately to the user, no retry.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// Is returns true if the target error is ErrUsage
func (e *UsageError) Is(target error) bool {
	return target == ErrUsage
}

// NewUsageError creates a new UsageError
func NewUsageError(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// BranchNotFoundError represents an error when a branch is not found
type BranchNotFoundError struct {
	BranchName string
	Remote     string
}

func (e *BranchNotFoundError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("branch %q does not exist in remote %q", e.BranchName, e.Remote)
	}
	return fmt.Sprintf("branch %q does not exist in the local working copy", e.BranchName)
}

// Is returns true if the target error is ErrBranchNotFound or ErrUsage
func (e *BranchNotFoundError) Is(target error) bool {
	return target == ErrBranchNotFound || target == ErrUsage
}

// NewBranchNotFoundError creates a new BranchNotFoundError
func NewBranchNotFoundError(branchName string) *BranchNotFoundError {
	return &BranchNotFoundError{BranchName: branchName}
}

// ConflictError represents a rebase or merge that stopped on a conflict
type ConflictError struct {
	BranchName  string
	Conflict    string // first CONFLICT line reported by git, if any
	Remediation string
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conflict on branch %s", e.BranchName)
	if e.Conflict != "" {
		fmt.Fprintf(&b, ": %s", e.Conflict)
	}
	if e.Remediation != "" {
		b.WriteString("\n")
		b.WriteString(e.Remediation)
	}
	return b.String()
}

// Is returns true if the target error is ErrRebaseConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrRebaseConflict
}

// NewConflictError creates a new ConflictError
func NewConflictError(branchName, conflict, remediation string) *ConflictError {
	return &ConflictError{
		BranchName:  branchName,
		Conflict:    conflict,
		Remediation: remediation,
	}
}

// ChainInconsistencyError reports the first stack index whose base does not
// match its parent's head
type ChainInconsistencyError struct {
	Index      int
	RevisionID int
}

func (e *ChainInconsistencyError) Error() string {
	return fmt.Sprintf("revision D%d (stack index %d) is not based on the latest diff of its parent", e.RevisionID, e.Index)
}

// Is returns true if the target error is ErrChainInconsistent
func (e *ChainInconsistencyError) Is(target error) bool {
	return target == ErrChainInconsistent
}

// RemoteSubmissionError wraps a failure reported by the submit queue
type RemoteSubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteSubmissionError) Error() string {
	msg := "submit queue rejected the request"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is returns true if the target error is ErrRemoteSubmission
func (e *RemoteSubmissionError) Is(target error) bool {
	return target == ErrRemoteSubmission
}

func (e *RemoteSubmissionError) Unwrap() error {
	return e.Err
}

// CleanupError reports a temporary branch that could not be deleted.
// It is logged, never returned as the result of an operation.
type CleanupError struct {
	BranchName string
	Err        error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("unable to remove temporary branch %s: %v", e.BranchName, e.Err)
}

// Is returns true if the target error is ErrCleanup
func (e *CleanupError) Is(target error) bool {
	return target == ErrCleanup
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// AdvisoryCheckError is produced by best-effort checks; callers swallow it.
type AdvisoryCheckError struct {
	Check string
	Err   error
}

func (e *AdvisoryCheckError) Error() string {
	return fmt.Sprintf("advisory check %s failed: %v", e.Check, e.Err)
}

func (e *AdvisoryCheckError) Unwrap() error {
	return e.Err
}

// UnexpectedValueError reports an invalid root or terminal branch
type UnexpectedValueError struct {
	Message string
}

func (e *UnexpectedValueError) Error() string {
	return e.Message
}

// Is returns true if the target error is ErrUnexpectedValue
func (e *UnexpectedValueError) Is(target error) bool {
	return target == ErrUnexpectedValue
}

// NewUnexpectedValueError creates a new UnexpectedValueError
func NewUnexpectedValueError(format string, args ...any) *UnexpectedValueError {
	return &UnexpectedValueError{Message: fmt.Sprintf(format, args...)}
}

// ConduitError is an error_code/error_info pair returned by the review service
type ConduitError struct {
	Method string
	Code   string
	Info   string
}

func (e *ConduitError) Error() string {
	return fmt.Sprintf("conduit %s failed: %s: %s", e.Method, e.Code, e.Info)
}

// GitCommandError represents an error from a git command execution
type GitCommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *GitCommandError) Error() string {
	msg := fmt.Sprintf("git command failed: %s", e.Command)
	if len(e.Args) > 0 {
		msg += fmt.Sprintf(" %v", e.Args)
	}
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		msg += fmt.Sprintf("\nstdout: %s", e.Stdout)
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n%v", e.Err)
	}
	return msg
}

func (e *GitCommandError) Unwrap() error {
	return e.Err
}

// NewGitCommandError creates a new GitCommandError
func NewGitCommandError(command string, args []string, exitCode int, stdout, stderr string, err error) *GitCommandError {
	return &GitCommandError{
		Command:  command,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Err:      err,
	}
}
