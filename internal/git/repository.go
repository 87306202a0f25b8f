package git

import (
	"fmt"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
)

// Repository wraps a go-git repository. It is used for read-only inspection
// (configuration, branch tracking); all mutations go through the Runner.
type Repository struct {
	*gogit.Repository
	path string
}

// OpenRepository opens a git repository at the given path
func OpenRepository(path string) (*Repository, error) {
	// Resolve to absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	repo, err := gogit.PlainOpenWithOptions(absPath, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	return &Repository{
		Repository: repo,
		path:       absPath,
	}, nil
}

// GetRepoRoot returns the root directory of the repository
func (r *Repository) GetRepoRoot() string {
	return r.path
}

// GitDir returns the path of the .git directory
func (r *Repository) GitDir() string {
	return filepath.Join(r.path, ".git")
}

// UpstreamPath describes the chain of tracking branches from a local branch
// towards a remote.
type UpstreamPath struct {
	// Branches lists local branches visited, starting with the queried branch
	Branches []string
	// Cycle is non-empty when following upstreams loops back to a visited branch
	Cycle []string
	// Remote and RemoteBranch are set when the path ends on a remote branch
	Remote       string
	RemoteBranch string
}

// Length is the number of upstream hops followed
func (p UpstreamPath) Length() int {
	if len(p.Branches) == 0 {
		return 0
	}
	hops := len(p.Branches) - 1
	if p.Remote != "" {
		hops++
	}
	return hops
}

// IsConnectedToRemote reports whether the path reaches a remote branch
func (p UpstreamPath) IsConnectedToRemote() bool {
	return p.Remote != "" && len(p.Cycle) == 0
}

// UpstreamPath follows branch.<name>.merge/remote configuration from branch
// until it reaches a remote branch, runs out, or detects a local cycle.
func (r *Repository) UpstreamPath(branch string) (UpstreamPath, error) {
	cfg, err := r.Config()
	if err != nil {
		return UpstreamPath{}, fmt.Errorf("failed to read repository config: %w", err)
	}

	path := UpstreamPath{Branches: []string{branch}}
	visited := map[string]bool{branch: true}
	current := branch
	for {
		b, ok := cfg.Branches[current]
		if !ok || b.Merge == "" {
			return path, nil
		}
		if b.Remote != "." {
			path.Remote = b.Remote
			path.RemoteBranch = b.Merge.Short()
			return path, nil
		}
		next := b.Merge.Short()
		if visited[next] {
			path.Cycle = append(append([]string{}, path.Branches...), next)
			return path, nil
		}
		visited[next] = true
		path.Branches = append(path.Branches, next)
		current = next
	}
}
