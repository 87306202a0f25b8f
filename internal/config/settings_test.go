package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"arcstack.dev/arcstack/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		home := t.TempDir()
		settings, err := config.Load(config.LoadOptions{HomeDir: home})
		require.NoError(t, err)
		require.Equal(t, "master", settings.Onto())
		require.Equal(t, filepath.Join(home, ".arcstack", "cache.db"), settings.CachePath)
		require.False(t, settings.SubmitQueueShadow)
		require.Empty(t, settings.ConduitToken)
	})

	t.Run("later layers win", func(t *testing.T) {
		home := t.TempDir()
		repo := t.TempDir()
		gitDir := filepath.Join(repo, ".git")

		writeFile(t, filepath.Join(home, ".arcstack", "config.yaml"), "cascade.halt: true\narc.land.onto.default: develop\n")
		writeFile(t, filepath.Join(repo, ".arcconfig"), `{
  "phabricator.uri": "https://phabricator.example.com/",
  "arc.land.onto.default": "main",
  "uber.land.submitqueue.uri": "https://sq.example.com",
  "uber.land.submitqueue.regex": "^src/",
  "uber.land.prevent-unaccepted-changes": true
}`)
		writeFile(t, filepath.Join(gitDir, "arclocalconfig"), `{"uber.land.submitqueue.shadow": "true"}`)

		settings, err := config.Load(config.LoadOptions{HomeDir: home, RepoRoot: repo, GitDir: gitDir})
		require.NoError(t, err)
		require.True(t, settings.CascadeHalt)
		require.Equal(t, "main", settings.Onto())
		require.Equal(t, "https://phabricator.example.com/", settings.ConduitURI)
		require.Equal(t, "https://sq.example.com", settings.SubmitQueueURI)
		require.Equal(t, "^src/", settings.SubmitQueueRegex)
		require.True(t, settings.PreventUnaccepted)
		require.True(t, settings.SubmitQueueShadow)
	})

	t.Run("environment overrides files", func(t *testing.T) {
		home := t.TempDir()
		repo := t.TempDir()
		writeFile(t, filepath.Join(repo, ".arcconfig"), `{"uber.land.submitqueue.uri": "https://sq.example.com"}`)
		t.Setenv("ARCSTACK_UBER_LAND_SUBMITQUEUE_URI", "https://sq.staging.example.com")
		t.Setenv("ARCSTACK_TRACE", "1")

		settings, err := config.Load(config.LoadOptions{HomeDir: home, RepoRoot: repo})
		require.NoError(t, err)
		require.Equal(t, "https://sq.staging.example.com", settings.SubmitQueueURI)
		require.True(t, settings.Trace)
	})

	t.Run("malformed arcconfig", func(t *testing.T) {
		repo := t.TempDir()
		writeFile(t, filepath.Join(repo, ".arcconfig"), `{"phabricator.uri": `)
		_, err := config.Load(config.LoadOptions{HomeDir: t.TempDir(), RepoRoot: repo})
		require.Error(t, err)
	})

	t.Run("token from arcrc", func(t *testing.T) {
		home := t.TempDir()
		repo := t.TempDir()
		writeFile(t, filepath.Join(repo, ".arcconfig"), `{"phabricator.uri": "https://phabricator.example.com/"}`)
		writeFile(t, filepath.Join(home, ".arcrc"), `{
  "hosts": {
    "https://other.example.com/api/": {"token": "api-other"},
    "https://phabricator.example.com/api/": {"token": "api-secret"}
  }
}`)

		settings, err := config.Load(config.LoadOptions{HomeDir: home, RepoRoot: repo})
		require.NoError(t, err)
		require.Equal(t, "api-secret", settings.ConduitToken)
	})
}

func TestConduitToken(t *testing.T) {
	token, err := config.ConduitToken(filepath.Join(t.TempDir(), "missing"), "https://phabricator.example.com")
	require.NoError(t, err)
	require.Empty(t, token)

	path := filepath.Join(t.TempDir(), ".arcrc")
	writeFile(t, path, `{"hosts": {"https://Phabricator.example.com/api/": {"token": "api-x"}}}`)
	token, err = config.ConduitToken(path, "https://phabricator.example.com")
	require.NoError(t, err)
	require.Equal(t, "api-x", token)
}
