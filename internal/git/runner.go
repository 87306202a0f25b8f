// Package git provides a wrapper around git commands and go-git for repository operations.
package git

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	arcerrors "arcstack.dev/arcstack/internal/errors"
)

// DefaultCommandTimeout is the default timeout for git commands
const DefaultCommandTimeout = 5 * time.Minute

// Result is the exit status and captured output of one git invocation
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether git exited with status 0
func (r Result) OK() bool {
	return r.ExitCode == 0
}

// Runner executes git synchronously. A non-zero exit status is reported through
// Result; the error return is reserved for failures to run git at all.
type Runner interface {
	Exec(ctx context.Context, args ...string) (Result, error)
	ExecInput(ctx context.Context, input string, args ...string) (Result, error)
}

// CommandRunner handles execution of git commands
type CommandRunner struct {
	workingDir string
	env        []string
}

// NewCommandRunner creates a new CommandRunner
func NewCommandRunner(workingDir string) *CommandRunner {
	return &CommandRunner{workingDir: workingDir}
}

// WithEnv returns a copy of the runner that appends env to every command
func (r *CommandRunner) WithEnv(env ...string) *CommandRunner {
	return &CommandRunner{
		workingDir: r.workingDir,
		env:        append(append([]string{}, r.env...), env...),
	}
}

// WorkingDir returns the directory commands run in
func (r *CommandRunner) WorkingDir() string {
	return r.workingDir
}

// Exec runs git with the given arguments
func (r *CommandRunner) Exec(ctx context.Context, args ...string) (Result, error) {
	return r.run(ctx, "", args...)
}

// ExecInput runs git with input on stdin
func (r *CommandRunner) ExecInput(ctx context.Context, input string, args ...string) (Result, error) {
	return r.run(ctx, input, args...)
}

func (r *CommandRunner) run(ctx context.Context, input string, args ...string) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// If no timeout/deadline is set in the context, add the default one
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	}
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return res, arcerrors.NewGitCommandError("git", args, -1, res.Stdout, res.Stderr, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, arcerrors.NewGitCommandError("git", args, -1, res.Stdout, res.Stderr, err)
}

// Execx runs git and converts a non-zero exit status into a GitCommandError.
// The returned stdout is trimmed.
func Execx(ctx context.Context, r Runner, args ...string) (string, error) {
	out, err := ExecxRaw(ctx, r, args...)
	return strings.TrimSpace(out), err
}

// ExecxRaw is Execx without trimming the output
func ExecxRaw(ctx context.Context, r Runner, args ...string) (string, error) {
	res, err := r.Exec(ctx, args...)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return res.Stdout, arcerrors.NewGitCommandError("git", args, res.ExitCode, res.Stdout, res.Stderr, nil)
	}
	return res.Stdout, nil
}

// ExecxInput is Execx with input on stdin
func ExecxInput(ctx context.Context, r Runner, input string, args ...string) (string, error) {
	res, err := r.ExecInput(ctx, input, args...)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return res.Stdout, arcerrors.NewGitCommandError("git", args, res.ExitCode, res.Stdout, res.Stderr, nil)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// SplitLines splits command output into non-empty lines
func SplitLines(output string) []string {
	output = strings.TrimSpace(output)
	if output == "" {
		return []string{}
	}
	return strings.Split(output, "\n")
}
