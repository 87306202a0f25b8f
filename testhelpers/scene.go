package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
)

// Scene represents a test scene with a temporary directory and Git repository.
type Scene struct {
	Dir  string
	Repo *GitRepo
}

// SceneSetup is a function type for setting up a scene.
type SceneSetup func(*Scene) error

// NewScene creates a new test scene with a temporary directory and Git
// repository. Cleanup is registered with t.Cleanup. Scenes do not change the
// process working directory, so they are safe for parallel tests.
func NewScene(t *testing.T, setup SceneSetup) *Scene {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "arcstack-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	// Resolve symlinks (macOS /var -> /private/var) so paths compare equal to
	// what git reports.
	if resolved, err := filepath.EvalSymlinks(tmpDir); err == nil {
		tmpDir = resolved
	}

	repo, err := NewGitRepo(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create Git repo: %v", err)
	}

	scene := &Scene{
		Dir:  tmpDir,
		Repo: repo,
	}

	if err := scene.writeDefaultConfigs(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to write config files: %v", err)
	}

	if setup != nil {
		if err := setup(scene); err != nil {
			os.RemoveAll(tmpDir)
			t.Fatalf("Setup failed: %v", err)
		}
	}

	t.Cleanup(func() {
		if os.Getenv("DEBUG") == "" {
			os.RemoveAll(tmpDir)
			os.RemoveAll(tmpDir + "-origin.git")
		}
	})

	return scene
}

// writeDefaultConfigs writes a repository .arcconfig pointing at fake endpoints.
func (s *Scene) writeDefaultConfigs() error {
	arcconfig := `{
  "phabricator.uri": "https://phabricator.example.com/",
  "uber.land.submitqueue.uri": "https://submitqueue.example.com"
}
`
	return os.WriteFile(filepath.Join(s.Dir, ".arcconfig"), []byte(arcconfig), 0600)
}

// BasicSceneSetup is a setup function that creates a basic scene with a single commit.
func BasicSceneSetup(scene *Scene) error {
	return scene.Repo.CreateChangeAndCommit("1", "1")
}

// StackSceneSetup creates main plus a chain of branches a <- b <- c, each
// tracking the previous one and carrying one commit with a revision trailer.
func StackSceneSetup(scene *Scene) error {
	if err := BasicSceneSetup(scene); err != nil {
		return err
	}
	parent := "main"
	for i, name := range []string{"a", "b", "c"} {
		if err := scene.Repo.CreateAndCheckoutBranch(name); err != nil {
			return err
		}
		if err := scene.Repo.SetUpstream(name, parent); err != nil {
			return err
		}
		if err := scene.Repo.CreateRevisionCommit(name, 101+i); err != nil {
			return err
		}
		parent = name
	}
	return scene.Repo.CheckoutBranch("main")
}
