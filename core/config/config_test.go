package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "runs", cfg.Storage.ReportPrefix)
	assert.Equal(t, "fileno:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "run", cfg.Numbering.Guarantee)
	assert.Equal(t, "file_groupings", cfg.Numbering.Table)
	assert.Equal(t, 5000, cfg.Import.ReadBatch)
	assert.Equal(t, 2000, cfg.Import.InsertBatchSize)
	assert.False(t, cfg.Import.SkipExisting)
	assert.Equal(t, 100, cfg.Recalc.WindowSize)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("IMPORT_SKIP_EXISTING", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Import.SkipExisting)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NUMBERING_GUARANTEE=persisted\nIMPORT_READ_BATCH=250\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("NUMBERING_GUARANTEE")
		os.Unsetenv("IMPORT_READ_BATCH")
	})

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "persisted", cfg.Numbering.Guarantee)
	assert.Equal(t, 250, cfg.Import.ReadBatch)
}
