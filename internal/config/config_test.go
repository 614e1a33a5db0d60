package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[server]
port = 8088

[database]
driver = "sqlite3"

[ingest]
probe_rows = 12
max_consecutive_errors = 5

[aggregator]
recompute_schedule = "0 3 * * *"

[log]
format = "json"
`)
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvDataDir, dir)

	cfg, info, err := LoadConfigWithInfo(path)
	require.NoError(t, err)
	assert.True(t, info.FileFound)
	assert.True(t, info.PortSpecified)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Ingest.ProbeRows)
	assert.Equal(t, 5, cfg.Ingest.MaxConsecutiveErrors)
	assert.Equal(t, float64(60), cfg.Ingest.MinMappingScore)
	assert.Equal(t, "0 3 * * *", cfg.Aggregator.RecomputeSchedule)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, "pensionhub.db"), DatabaseDSN(cfg))
}

func TestLoadConfig_PortFromEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "[log]\nlevel = \"warn\"\n")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvDBDriver, "pgx")
	t.Setenv(EnvDBDSN, "postgres://localhost/pension")

	cfg, info, err := LoadConfigWithInfo(path)
	require.NoError(t, err)
	assert.True(t, info.PortSpecified)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/pension", DatabaseDSN(cfg))

	t.Setenv(EnvPort, "abc")
	_, _, err = LoadConfigWithInfo(path)
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LoadConfigWithInfo(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.toml", "[database]\ndriver = \"mysql\"\n")
	_, _, err = LoadConfigWithInfo(bad)
	assert.ErrorContains(t, err, "unsupported database driver")

	pg := writeFile(t, dir, "pg.toml", "[database]\ndriver = \"pgx\"\n")
	_, _, err = LoadConfigWithInfo(pg)
	assert.ErrorContains(t, err, "dsn is required")

	broken := writeFile(t, dir, "broken.toml", "[server\nport = 1")
	_, _, err = LoadConfigWithInfo(broken)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.Server.Port = 7001
	cfg.Data.DataDir = dir
	require.NoError(t, SaveConfig(cfg, path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, got.Server.Port)

	dataDir, err := EnsureDataDir(got)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dataDir, "uploads"))
	assert.DirExists(t, filepath.Join(dataDir, "exports"))
	assert.Equal(t, filepath.Join(dir, "exports", "a.xlsx"), GetDataPath(got, "exports", "a.xlsx"))
}
