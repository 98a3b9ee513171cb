package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaultsToInfoText(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelInfo, Output: &buf})

	l.Debug("should not appear")
	l.Info("hello", "key", "value")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "hello")
	require.Contains(t, out, "key=value")
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("hello", "count", 3)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "hello", decoded["msg"])
	require.Equal(t, float64(3), decoded["count"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelError, Output: &buf})

	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	require.False(t, strings.Contains(out, "warn message"))
	require.True(t, strings.Contains(out, "error message"))
}

func TestLevelFromVerbosity(t *testing.T) {
	require.Equal(t, LevelSilent, LevelFromVerbosity(0))
	require.Equal(t, LevelError, LevelFromVerbosity(1))
	require.Equal(t, LevelWarn, LevelFromVerbosity(2))
	require.Equal(t, LevelInfo, LevelFromVerbosity(3))
	require.Equal(t, LevelDebug, LevelFromVerbosity(4))
	require.Equal(t, LevelDebug, LevelFromVerbosity(99))
	require.Equal(t, LevelSilent, LevelFromVerbosity(-1))
}

func TestDefaultLoggerIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	require.Same(t, a, b)
}

func TestSetDefaultOverridesSingleton(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelInfo, Output: &buf})
	SetDefault(custom)
	defer SetDefault(nil)

	Info("through the package function")
	require.Contains(t, buf.String(), "through the package function")
}
