package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"arcstack.dev/arcstack/internal/config"
	"arcstack.dev/arcstack/internal/diffcache"
	arcerrors "arcstack.dev/arcstack/internal/errors"
	"arcstack.dev/arcstack/internal/git"
	"arcstack.dev/arcstack/internal/review"
	"arcstack.dev/arcstack/internal/submitqueue"
	"arcstack.dev/arcstack/internal/tui"
)

// Context provides the repository, settings and service clients to commands
type Context struct {
	context.Context

	Settings   *config.Settings
	Splog      *tui.Splog
	RepoRoot   string
	Repository *git.Repository
	Git        *git.API
	Prompter   tui.Prompter

	review  review.Client
	closers []io.Closer
}

// Options override how a Context is built
type Options struct {
	// Dir is any directory inside the repository; defaults to the working directory
	Dir string
	// Trace forces trace output on regardless of settings
	Trace bool
	// Out receives console output; defaults to stdout
	Out io.Writer
}

// GetContext builds a Context for the repository containing the working directory
func GetContext(ctx context.Context) (*Context, error) {
	return NewContext(ctx, Options{})
}

// NewContext builds a Context from opts
func NewContext(ctx context.Context, opts Options) (*Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	repoRoot, err := git.GetRepoRoot(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	repo, err := git.OpenRepository(repoRoot)
	if err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	settings, err := config.Load(config.LoadOptions{
		RepoRoot: repoRoot,
		GitDir:   repo.GitDir(),
		HomeDir:  home,
	})
	if err != nil {
		return nil, err
	}

	splog, err := tui.NewSplogWithConfig(out, tui.GetLogFilePath())
	if err != nil {
		// A broken log directory must not stop the command.
		splog, _ = tui.NewSplogWithConfig(out, "")
	}
	if settings.Trace || opts.Trace {
		splog.EnableTrace(os.Stderr)
	}

	var runner git.Runner = git.NewCommandRunner(repoRoot)
	if splog.TraceEnabled() {
		runner = &tracingRunner{Runner: runner, splog: splog}
	}

	c := &Context{
		Context:    ctx,
		Settings:   settings,
		Splog:      splog,
		RepoRoot:   repoRoot,
		Repository: repo,
		Git:        git.NewAPI(runner),
		Prompter:   tui.NewPrompter(),
	}
	c.closers = append(c.closers, splog)
	return c, nil
}

// Review returns the Conduit client, failing when no review service is configured
func (c *Context) Review() (review.Client, error) {
	if c.review != nil {
		return c.review, nil
	}
	if c.Settings.ConduitURI == "" {
		return nil, arcerrors.NewUsageError(
			"no review service configured, set %q in .arcconfig", config.KeyPhabricatorURI)
	}
	c.review = review.NewConduitClient(c.Settings.ConduitURI, c.Settings.ConduitToken, nil)
	return c.review, nil
}

// SubmitQueue returns the queue client, or nil when no submit queue is configured
func (c *Context) SubmitQueue() submitqueue.Submitter {
	if c.Settings.SubmitQueueURI == "" {
		return nil
	}
	return submitqueue.NewClient(c, c.Settings.SubmitQueueURI, c.Settings.ConduitToken)
}

// DiffCache returns a cache of head and active diffs, persisted in sqlite
// unless caching is disabled
func (c *Context) DiffCache() (*diffcache.DiffCache, error) {
	client, err := c.Review()
	if err != nil {
		return nil, err
	}
	if c.Settings.CacheDisabled {
		return diffcache.New(nil, c.Git, client), nil
	}
	store, err := diffcache.OpenSQLiteCache(c.Settings.CachePath)
	if err != nil {
		c.Splog.Debug("diff cache unavailable, using memory: %v", err)
		return diffcache.New(diffcache.NewMemoryCache(), c.Git, client), nil
	}
	c.closers = append(c.closers, store)
	return diffcache.New(store, c.Git, client), nil
}

// Close releases the cache database and the log file
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// tracingRunner logs every git invocation at trace level
type tracingRunner struct {
	git.Runner
	splog *tui.Splog
}

func (t *tracingRunner) Exec(ctx context.Context, args ...string) (git.Result, error) {
	return t.ExecInput(ctx, "", args...)
}

func (t *tracingRunner) ExecInput(ctx context.Context, input string, args ...string) (git.Result, error) {
	start := time.Now()
	res, err := t.Runner.ExecInput(ctx, input, args...)
	t.splog.Trace("git %s (exit %d, %s)", strings.Join(args, " "), res.ExitCode, time.Since(start).Round(time.Millisecond))
	return res, err
}
