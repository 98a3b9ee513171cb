package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jiutaid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("config_dir: /srv/services\njiukun_max_order: 14\n"), 0o644))

	s, err := NewLoader(path).Load()
	require.NoError(t, err)
	require.Equal(t, "/srv/services", s.ConfigDir)
	require.Equal(t, uint32(14), s.JiukunMaxOrder)
	require.Equal(t, "info", s.LogLevel) // untouched default
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.yaml")

	s, err := NewLoader(path).Load()
	require.NoError(t, err)
	require.Equal(t, Defaults().ConfigDir, s.ConfigDir)
}
