package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orels1/api.v3.cogs.red/internal/registry/config"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600), "Setup: failed to write config file")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
		noFile  bool

		wantErr      bool
		wantReserved []string
	}{
		"Valid config": {
			content:      `{"reservedNames": ["admin", "internal"]}`,
			wantReserved: []string{"admin", "internal"},
		},
		"Empty list keeps defaults": {
			content: `{"reservedNames": []}`,
		},
		"Missing file":     {noFile: true, wantErr: true},
		"Malformed config": {content: `{"reservedNames": `, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.json")
			if !tc.noFile {
				writeConfig(t, path, tc.content)
			}

			cm := config.New(path)
			err := cm.Load()
			if tc.wantErr {
				require.Error(t, err, "Load should fail")
				return
			}
			require.NoError(t, err, "Load should succeed")
			assert.Equal(t, tc.wantReserved, cm.ReservedNames())
		})
	}
}

func TestValidDelegation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"reservedNames": ["admin"]}`)

	cm := config.New(path)

	// Before loading, the built-in denylist applies.
	assert.False(t, cm.Valid("class"), "Python keywords are reserved by default")
	assert.True(t, cm.Valid("admin"))

	require.NoError(t, cm.Load())

	// The configured denylist replaces the built-in one.
	assert.False(t, cm.Valid("admin"))
	assert.True(t, cm.Valid("class"))
	assert.False(t, cm.Valid("1abc"), "charset rules always apply")
}

func TestEmptyPathIsNoop(t *testing.T) {
	t.Parallel()

	cm := config.New("")
	require.NoError(t, cm.Load(), "Load with no path is a no-op")
	assert.False(t, cm.Valid("lambda"), "defaults stay in effect")
	assert.True(t, cm.Valid("mycog"))
}

func TestWatchReloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfig(t, path, `{"reservedNames": ["admin"]}`)

	cm := config.New(path)
	changes, errs, err := cm.Watch(t.Context())
	require.NoError(t, err, "Watch should start")

	require.False(t, cm.Valid("admin"), "initial load applies")

	writeConfig(t, path, `{"reservedNames": ["other"]}`)

	select {
	case <-changes:
	case err := <-errs:
		t.Fatalf("watcher error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change notification")
	}

	assert.True(t, cm.Valid("admin"))
	assert.False(t, cm.Valid("other"))
}
