package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/treesync/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func noEnv() []string { return nil }

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 256, cfg.Sync.MaxTreeDepth)
	assert.Equal(t, 1, cfg.Sync.Workers)
	assert.True(t, cfg.Sync.AutoCommit)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, err := NewLoader(path, WithEnviron(noEnv)).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treesync.toml")
	writeFile(t, path, `
[sync]
max_tree_depth = 64
auto_commit = false

[logging]
level = "debug"
`)

	cfg, err := NewLoader(path, WithEnviron(noEnv)).Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Sync.MaxTreeDepth)
	assert.False(t, cfg.Sync.AutoCommit)
	assert.Equal(t, 1, cfg.Sync.Workers, "unset keys keep their default")
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel())
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treesync.toml")
	writeFile(t, path, "[sync]\nworkers = 2\nmax_retries = 3\n")

	env := func() []string {
		return []string{
			"HOME=/root",
			"TREESYNC_SYNC_WORKERS=4",
			"TREESYNC_SYNC_CONSISTENCY_CHECK=false",
			"TREESYNC_LOGGING_LEVEL=warn",
			"TREESYNC_BOGUS=1",
		}
	}
	cfg, err := NewLoader(path, WithEnviron(env)).Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.False(t, cfg.Sync.ConsistencyCheck)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "syntax",
			content: "[sync\n",
			check: func(t *testing.T, err error) {
				var pe *ParseError
				assert.ErrorAs(t, err, &pe)
			},
		},
		{
			name:    "unknown key",
			content: "[sync]\nmax_depth = 3\n",
			check: func(t *testing.T, err error) {
				var pe *ParseError
				assert.ErrorAs(t, err, &pe)
			},
		},
		{
			name:    "invalid values",
			content: "[sync]\nworkers = 0\nmax_retries = -1\n[logging]\nlevel = \"loud\"\n",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrValidationFailed)
				assert.ErrorContains(t, err, "sync.workers")
				assert.ErrorContains(t, err, "sync.max_retries")
				assert.ErrorContains(t, err, "logging.level")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "treesync.toml")
			writeFile(t, path, tt.content)
			_, err := NewLoader(path, WithEnviron(noEnv)).Load()
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestEnvToPath(t *testing.T) {
	tests := []struct {
		name    string
		section string
		key     string
		ok      bool
	}{
		{"SYNC_MAX_TREE_DEPTH", "sync", "max_tree_depth", true},
		{"LOGGING_LEVEL", "logging", "level", true},
		{"SIMPLE", "", "", false},
		{"_LEVEL", "", "", false},
	}
	for _, tt := range tests {
		section, key, ok := envToPath(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.section, section, tt.name)
		assert.Equal(t, tt.key, key, tt.name)
	}
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, int64(12), parseValue("12"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, true, parseValue("TRUE"))
	assert.Equal(t, false, parseValue("false"))
	assert.Equal(t, "debug", parseValue("debug"))
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "treesync.toml")
	writeFile(t, path, "[sync]\nworkers = 1\n")

	var mu sync.Mutex
	var got []Config
	var errs []error
	w, err := Watch(context.Background(), path, func(cfg Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			return
		}
		got = append(got, cfg)
	}, WithDebounce(10*time.Millisecond), WithLoader(NewLoader(path, WithEnviron(noEnv))))
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "other.toml"), "ignored")
	writeFile(t, path, "[sync]\nworkers = 3\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].Sync.Workers == 3
	}, 5*time.Second, 10*time.Millisecond)

	writeFile(t, path, "[sync]\nworkers = 0\n")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), ErrWatcherClosed)
}
