package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataDir_Default(t *testing.T) {
	ResetDataDir()
	t.Cleanup(ResetDataDir)
	t.Setenv(EnvDataDir, "")

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, ".streamchat"), GetDataDir())
}

func TestGetDataDir_EnvOverride(t *testing.T) {
	ResetDataDir()
	t.Cleanup(ResetDataDir)
	t.Setenv(EnvDataDir, "/custom/data/path")

	assert.Equal(t, "/custom/data/path", GetDataDir())
}

func TestGetDataDir_Cached(t *testing.T) {
	ResetDataDir()
	t.Cleanup(ResetDataDir)
	t.Setenv(EnvDataDir, "/first/path")
	assert.Equal(t, "/first/path", GetDataDir())

	t.Setenv(EnvDataDir, "/second/path")
	assert.Equal(t, "/first/path", GetDataDir(), "应该返回缓存值，不受环境变量修改影响")
}

func TestEnsureDataDir(t *testing.T) {
	ResetDataDir()
	t.Cleanup(ResetDataDir)
	dir := filepath.Join(t.TempDir(), "nested", "data")
	t.Setenv(EnvDataDir, dir)

	got, err := EnsureDataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.DirExists(t, dir)
}
