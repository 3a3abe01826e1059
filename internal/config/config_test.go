package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0640))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 0.85, cfg.Inspection.CompareThreshold)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTmpConfig(t, `
server:
  addr: ":9999"
inspection:
  compare_threshold: 0.95
  worker_pool_size: 4
`)
	cfg := Load(path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 0.95, cfg.Inspection.CompareThreshold)
	assert.Equal(t, 4, cfg.Inspection.WorkerPoolSize)
	// untouched fields keep their defaults
	assert.Equal(t, "./shared", cfg.Server.SharedRoot)
}

func TestLoadMalformedFileFallsBackToDefaults(t *testing.T) {
	path := writeTmpConfig(t, "not: [valid: yaml")
	cfg := Load(path)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTmpConfig(t, "inspection:\n  compare_threshold: 0.5\n")
	w := NewWatcher(path)
	assert.Equal(t, 0.5, w.Current().Inspection.CompareThreshold)

	done := make(chan struct{})
	defer close(done)
	w.Start(done)

	require.NoError(t, os.WriteFile(path, []byte("inspection:\n  compare_threshold: 0.7\n"), 0640))

	assert.Eventually(t, func() bool {
		return w.Current().Inspection.CompareThreshold == 0.7
	}, 2*time.Second, 50*time.Millisecond)
}
