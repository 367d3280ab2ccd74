package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cauchy.toml")
	contents := "[Network]\nserver_port = 9000\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(9000), cfg.Network.ServerPort)
	assert.Equal(t, Default().Mining, cfg.Mining)
}

func TestDefaultClampsLevelDBCache(t *testing.T) {
	cfg := Default()
	assert.GreaterOrEqual(t, cfg.Storage.LevelDBCache, 16)
	assert.LessOrEqual(t, cfg.Storage.LevelDBCache, 512)
}
