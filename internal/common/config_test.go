package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, 4, config.Scheduler.MaxWorkers)
	assert.Equal(t, 3, config.Scheduler.MaxActiveUsers)
	assert.Equal(t, 1024, config.Executor.TileSize)
	assert.Equal(t, 64, config.Executor.TileOverlap)
	assert.True(t, config.Executor.EnableInstanSeg)
	assert.Equal(t, 10, config.Workflows.MaxJobsPerWorkflow)
}

func TestLoadFromFilesLayering(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[scheduler]
max_workers = 8

[executor]
tile_size = 512
tile_overlap = 32
`), 0o644))
	require.NoError(t, os.WriteFile(override, []byte(`
[scheduler]
max_workers = 2
`), 0o644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, 2, config.Scheduler.MaxWorkers, "later file wins")
	assert.Equal(t, 512, config.Executor.TileSize)
	assert.Equal(t, 3, config.Scheduler.MaxActiveUsers, "defaults survive")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TISSUELAB_MAX_WORKERS", "16")
	t.Setenv("TISSUELAB_ENABLE_INSTANSEG", "false")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 16, config.Scheduler.MaxWorkers)
	assert.False(t, config.Executor.EnableInstanSeg)
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	config := NewDefaultConfig()
	config.Scheduler.MaxWorkers = 0
	assert.Error(t, config.Validate())
}

func TestValidateRejectsOversizedOverlap(t *testing.T) {
	config := NewDefaultConfig()
	config.Executor.TileSize = 100
	config.Executor.TileOverlap = 50
	assert.Error(t, config.Validate())
}

func TestValidateRejectsBadThrottle(t *testing.T) {
	config := NewDefaultConfig()
	config.Events.ProgressThrottle = "often"
	assert.Error(t, config.Validate())
}

func TestFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 9999, "0.0.0.0")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9999, config.Server.Port, "zero values leave config untouched")
}

func TestParsedDurations(t *testing.T) {
	config := NewDefaultConfig()
	assert.Equal(t, 250*time.Millisecond, config.ProgressThrottleInterval())
	assert.Equal(t, 30*time.Minute, config.WatchdogMaxRunning())

	config.Events.ProgressThrottle = ""
	assert.Equal(t, 250*time.Millisecond, config.ProgressThrottleInterval())
}
