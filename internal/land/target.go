package land

import (
	"context"
	"strings"

	"arcstack.dev/arcstack/internal/config"
)

// Target names what is landed and where it goes
type Target struct {
	Source string
	// SourceIsBranch is false when landing a detached commit or a
	// temporary branch, which are never deleted after landing
	SourceIsBranch bool
	Onto           string
	Remote         string
}

// RemoteRef is the remote-tracking ref of the target, e.g. origin/master
func (t Target) RemoteRef() string {
	return t.Remote + "/" + t.Onto
}

// ResolveTarget determines the source, target branch and remote of a landing.
//
// The target branch is the --onto flag, else the local branch the source
// tracks, else the branch on the remote it tracks, else the configured
// default. The remote is the --remote flag, else the remote the target
// branch tracks, else origin.
func (o *Orchestrator) ResolveTarget(ctx context.Context, opts Options) (Target, error) {
	target := Target{Source: opts.Branch, SourceIsBranch: true}
	if target.Source == "" {
		current, err := o.repo.CurrentBranch(ctx)
		if err != nil {
			return Target{}, err
		}
		if current == "" {
			sha, err := o.repo.HeadSHA(ctx)
			if err != nil {
				return Target{}, err
			}
			target.Source = sha
			target.SourceIsBranch = false
		} else {
			target.Source = current
		}
	}

	target.Onto = opts.Onto
	if target.Onto == "" && target.SourceIsBranch {
		target.Onto = o.upstreamOf(target.Source)
	}
	if target.Onto == "" {
		target.Onto = o.cfg.OntoDefault
	}
	if target.Onto == "" {
		target.Onto = config.DefaultOnto
	}

	target.Remote = opts.Remote
	if target.Remote == "" {
		target.Remote = o.remoteOf(target.Onto)
	}
	if target.Remote == "" {
		target.Remote = config.DefaultRemote
	}
	o.splog.Debug("landing %s onto %s", target.Source, target.RemoteRef())
	return target, nil
}

// upstreamOf returns the first hop of branch's upstream path
func (o *Orchestrator) upstreamOf(branch string) string {
	if o.upstreams == nil {
		return ""
	}
	path, err := o.upstreams.UpstreamPath(branch)
	if err != nil {
		o.splog.Debug("failed to read upstream of %s: %v", branch, err)
		return ""
	}
	if len(path.Cycle) > 0 {
		o.splog.Warn("Ignoring the upstream of %q, it loops: %s", branch, strings.Join(path.Cycle, " -> "))
		return ""
	}
	if len(path.Branches) > 1 {
		return path.Branches[1]
	}
	return path.RemoteBranch
}

// remoteOf returns the remote at the end of branch's upstream path
func (o *Orchestrator) remoteOf(branch string) string {
	if o.upstreams == nil {
		return ""
	}
	path, err := o.upstreams.UpstreamPath(branch)
	if err != nil || len(path.Cycle) > 0 {
		return ""
	}
	return path.Remote
}
