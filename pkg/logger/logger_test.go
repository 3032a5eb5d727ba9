package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharmLogger(t *testing.T) {
	t.Run("NewConsoleLogger", func(t *testing.T) {
		l := NewConsoleLogger("warn")
		require.NotNil(t, l)

		charm, ok := l.(*CharmLogger)
		require.True(t, ok)
		assert.Equal(t, "warn", charm.Level)
		assert.Empty(t, charm.File)
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		l := New(&bytes.Buffer{}, "chatty")
		assert.Equal(t, "info", l.Level)
	})
}

func TestLoggingLevels(t *testing.T) {
	t.Run("Debug suppressed at info", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, "info")
		l.Debug("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("Debug emitted at debug", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, "debug")
		l.Debug("parsed table", map[string]interface{}{"group": 2})
		out := buf.String()
		assert.Contains(t, out, "parsed table")
		assert.Contains(t, out, "group=2")
	})

	t.Run("Warn", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, "info")
		l.Warn("short group", map[string]interface{}{"missing": 1})
		assert.Contains(t, buf.String(), "short group")
		assert.Contains(t, buf.String(), "missing=1")
	})

	t.Run("Error carries error field", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, "info")
		l.Error("fetch failed", errors.New("timeout"), map[string]interface{}{"url": "a.pdf"})
		out := buf.String()
		assert.Contains(t, out, "fetch failed")
		assert.Contains(t, out, "timeout")
		assert.Contains(t, out, "a.pdf")
	})
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "info")

	child := l.WithFields(map[string]interface{}{"run_id": "abc"})
	child.Info("processing")

	assert.Contains(t, buf.String(), "run_id=abc")

	buf.Reset()
	l.Info("parent")
	assert.NotContains(t, buf.String(), "run_id")
}

func TestFieldOrderIsStable(t *testing.T) {
	kv := flatten(map[string]interface{}{"b": 2, "a": 1, "c": 3})
	assert.Equal(t, []interface{}{"a", 1, "b", 2, "c", 3}, kv)
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "import.log")

	l, err := NewFileLogger("info", path)
	require.NoError(t, err)
	l.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}
