package testhelpers

import (
	"context"
	"strings"
	"sync"

	"arcstack.dev/arcstack/internal/git"
)

// FakeCall is one command seen by a FakeRunner
type FakeCall struct {
	Args  []string
	Input string
}

// String renders the call the way it would be typed after "git"
func (c FakeCall) String() string {
	return strings.Join(c.Args, " ")
}

type fakeResponse struct {
	prefix []string
	handle func(call FakeCall) git.Result
}

// FakeRunner implements git.Runner without a repository. Responses are
// registered per argument prefix; the most recently registered match wins.
// Unmatched commands succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	calls     []FakeCall
	responses []fakeResponse
}

var _ git.Runner = (*FakeRunner)(nil)

// NewFakeRunner creates a runner where every command succeeds
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On returns stdout for commands starting with prefix
func (f *FakeRunner) On(stdout string, prefix ...string) *FakeRunner {
	return f.Handle(func(FakeCall) git.Result {
		return git.Result{Stdout: stdout}
	}, prefix...)
}

// Fail makes commands starting with prefix exit with code 1
func (f *FakeRunner) Fail(stdout, stderr string, prefix ...string) *FakeRunner {
	return f.Handle(func(FakeCall) git.Result {
		return git.Result{ExitCode: 1, Stdout: stdout, Stderr: stderr}
	}, prefix...)
}

// Handle registers a custom responder for commands starting with prefix
func (f *FakeRunner) Handle(handle func(call FakeCall) git.Result, prefix ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeResponse{prefix: prefix, handle: handle})
	return f
}

// Exec implements git.Runner
func (f *FakeRunner) Exec(ctx context.Context, args ...string) (git.Result, error) {
	return f.ExecInput(ctx, "", args...)
}

// ExecInput implements git.Runner
func (f *FakeRunner) ExecInput(_ context.Context, input string, args ...string) (git.Result, error) {
	call := FakeCall{Args: append([]string{}, args...), Input: input}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	var handle func(FakeCall) git.Result
	for i := len(f.responses) - 1; i >= 0; i-- {
		if hasPrefix(args, f.responses[i].prefix) {
			handle = f.responses[i].handle
			break
		}
	}
	f.mu.Unlock()

	if handle == nil {
		return git.Result{}, nil
	}
	return handle(call), nil
}

// Calls returns every command run so far
func (f *FakeRunner) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall{}, f.calls...)
}

// CallsTo returns the commands whose first argument is verb
func (f *FakeRunner) CallsTo(verb string) []FakeCall {
	var matched []FakeCall
	for _, c := range f.Calls() {
		if len(c.Args) > 0 && c.Args[0] == verb {
			matched = append(matched, c)
		}
	}
	return matched
}

// Ran reports whether a command starting with prefix was run
func (f *FakeRunner) Ran(prefix ...string) bool {
	for _, c := range f.Calls() {
		if hasPrefix(c.Args, prefix) {
			return true
		}
	}
	return false
}

// MutatingCommands are the git verbs that change refs, the index or the
// working tree
var MutatingCommands = map[string]bool{
	"checkout":    true,
	"branch":      true,
	"rebase":      true,
	"merge":       true,
	"reset":       true,
	"commit":      true,
	"apply":       true,
	"push":        true,
	"cherry-pick": true,
	"update-ref":  true,
}

// MutatingCalls returns the commands that would have changed the repository
func (f *FakeRunner) MutatingCalls() []FakeCall {
	var mutating []FakeCall
	for _, c := range f.Calls() {
		if len(c.Args) > 0 && MutatingCommands[c.Args[0]] {
			mutating = append(mutating, c)
		}
	}
	return mutating
}

func hasPrefix(args, prefix []string) bool {
	if len(prefix) > len(args) {
		return false
	}
	for i, p := range prefix {
		if args[i] != p {
			return false
		}
	}
	return true
}
