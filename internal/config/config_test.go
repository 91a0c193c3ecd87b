package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func withXDG(t *testing.T) (configHome, stateHome string) {
	t.Helper()
	configHome = t.TempDir()
	stateHome = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("XDG_STATE_HOME", stateHome)
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return configHome, stateHome
}

func TestDefault(t *testing.T) {
	_, state := withXDG(t)

	cfg := Default()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Log.RotationDays)
	assert.Equal(t, filepath.Join(state, "fileman"), cfg.Log.Dir)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(state, "fileman", "history.db"), cfg.History.Path)
	assert.Equal(t, 32*1024, cfg.Transfer.ChunkSize)
	assert.True(t, cfg.Transfer.CheckFreeSpace)
	assert.False(t, cfg.Transfer.CreateParents)
	assert.True(t, cfg.Move.CrossDevice)
	assert.False(t, cfg.Move.CreateParents)
	assert.Equal(t, 30*time.Second, cfg.Transfer.ConnectTimeout())
	assert.Equal(t, time.Duration(0), cfg.Transfer.Timeout())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
log:
  level: DEBUG
  dir: /var/log/fileman
transfer:
  chunk_size: 4096
  timeout_seconds: 600
  create_parents: true
move:
  cross_device: false
safety:
  protected_paths: [/srv/keep/]
  allowed_roots: [/srv, /tmp/work/../work]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Source)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/log/fileman", cfg.Log.Dir)
	assert.Equal(t, 4096, cfg.Transfer.ChunkSize)
	assert.Equal(t, 10*time.Minute, cfg.Transfer.Timeout())
	assert.True(t, cfg.Transfer.CreateParents)
	// Unset keys keep their defaults
	assert.True(t, cfg.Transfer.CheckFreeSpace)
	assert.Equal(t, 30, cfg.Transfer.HeaderTimeoutSeconds)
	assert.False(t, cfg.Move.CrossDevice)
	assert.Equal(t, []string{"/srv/keep"}, cfg.Safety.ProtectedPaths)
	assert.Equal(t, []string{"/srv", "/tmp/work"}, cfg.Safety.AllowedRoots)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[history]
enabled = false

[metrics]
textfile = "/var/lib/node_exporter/fileman.prom"

[transfer]
max_bytes_per_second = 1048576
user_agent = "fileman-ci"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "/var/lib/node_exporter/fileman.prom", cfg.Metrics.Textfile)
	assert.Equal(t, int64(1048576), cfg.Transfer.MaxBytesPerSecond)
	assert.Equal(t, "fileman-ci", cfg.Transfer.UserAgent)
	assert.Equal(t, 32*1024, cfg.Transfer.ChunkSize)
}

func TestLoadEmptyYAMLUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Move.CrossDevice)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{"negative chunk", "c.yaml", "transfer:\n  chunk_size: -1\n", errNegativeSize},
		{"negative timeout", "c.toml", "[transfer]\ntimeout_seconds = -5\n", errNegativeSize},
		{"relative allowed root", "c.yaml", "safety:\n  allowed_roots: [relative/dir]\n", errInvalidPath},
		{"relative protected path", "c.yaml", "safety:\n  protected_paths: [\"\"]\n", errInvalidPath},
		{"unknown level", "c.yaml", "log:\n  level: loud\n", errUnknownLevel},
		{"textfile suffix", "c.yaml", "metrics:\n  textfile: /tmp/fileman.txt\n", errTextfileNotProm},
		{"relative history", "c.yaml", "history:\n  path: history.db\n", errInvalidPath},
		{"unsupported type", "c.json", "{}", errUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "c.yaml", "transfer:\n  chunk_sise: 10\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "c.toml", "[move]\nforce = true\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOrDefault(t *testing.T) {
	configHome, _ := withXDG(t)

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Source)
	assert.Equal(t, "info", cfg.Log.Level)

	dir := filepath.Join(configHome, "fileman")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("[log]\nlevel = \"warn\"\n"), 0o644))

	cfg, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, tomlPath, cfg.Source)
	assert.Equal(t, "warn", cfg.Log.Level)

	// YAML wins over TOML when both exist
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("log:\n  level: error\n"), 0o644))
	cfg, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, yamlPath, cfg.Source)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestSearchPaths(t *testing.T) {
	configHome, _ := withXDG(t)
	assert.Equal(t, []string{
		filepath.Join(configHome, "fileman", "config.yaml"),
		filepath.Join(configHome, "fileman", "config.yml"),
		filepath.Join(configHome, "fileman", "config.toml"),
	}, SearchPaths())
}
