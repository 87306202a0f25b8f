package tui_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"arcstack.dev/arcstack/internal/tui"
)

func TestSplog(t *testing.T) {
	t.Run("writes plain messages to the console", func(t *testing.T) {
		var buf bytes.Buffer
		splog, err := tui.NewSplogWithConfig(&buf, "")
		require.NoError(t, err)

		splog.Info("landing %d revisions", 3)
		splog.Warn("careful")
		require.Equal(t, "landing 3 revisions\n⚠️  careful\n", buf.String())
	})

	t.Run("quiet suppresses output", func(t *testing.T) {
		var buf bytes.Buffer
		splog, err := tui.NewSplogWithConfig(&buf, "")
		require.NoError(t, err)

		splog.SetQuiet(true)
		splog.Info("hidden")
		splog.Newline()
		require.Empty(t, buf.String())
	})

	t.Run("trace is off until enabled", func(t *testing.T) {
		var console, trace bytes.Buffer
		splog, err := tui.NewSplogWithConfig(&console, "")
		require.NoError(t, err)

		splog.Trace("created %s", "arcstack-D1_0")
		require.False(t, splog.TraceEnabled())

		splog.EnableTrace(&trace)
		splog.Trace("created %s", "arcstack-D1_0")
		require.True(t, splog.TraceEnabled())
		require.Contains(t, trace.String(), "trace")
		require.Contains(t, trace.String(), "created arcstack-D1_0")
		require.Empty(t, console.String())
	})

	t.Run("creates the log file directory", func(t *testing.T) {
		var buf bytes.Buffer
		path := filepath.Join(t.TempDir(), "logs", "arcstack.log")
		splog, err := tui.NewSplogWithConfig(&buf, path)
		require.NoError(t, err)
		splog.Info("hello")
		require.NoError(t, splog.Close())
		require.FileExists(t, path)
	})
}

func TestGetLogFilePath(t *testing.T) {
	t.Setenv("ARCSTACK_LOG_FILE", "/tmp/custom.log")
	require.Equal(t, "/tmp/custom.log", tui.GetLogFilePath())
}

func TestTreeColumn(t *testing.T) {
	require.Equal(t, "", tui.TreeColumn(0))
	require.Equal(t, "└─ ", tui.TreeColumn(1))
	require.Equal(t, "    └─ ", tui.TreeColumn(3))
}

func TestConfirmDisabled(t *testing.T) {
	t.Setenv("ARCSTACK_NO_INTERACTIVE", "1")
	_, err := tui.NewPrompter().Confirm("land?", true)
	require.ErrorIs(t, err, tui.ErrInteractiveDisabled)
}
