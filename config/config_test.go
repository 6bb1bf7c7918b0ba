package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.Kea.ControlAgentURL)
	assert.Equal(t, 1, c.Kea.DefaultSubnetID)
	assert.Equal(t, 10, c.App.LockTimeoutSeconds)
	assert.Equal(t, "info", c.Logging.Level)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
kea:
  control_agent_url: http://kea.internal:8000
  username: operator
  password: hunter2
logging:
  level: debug
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://kea.internal:8000", c.Kea.ControlAgentURL)
	assert.Equal(t, "operator", c.Kea.Username)
	// untouched sections keep their defaults
	assert.Equal(t, 1, c.Kea.DefaultSubnetID)
	assert.Equal(t, "0.0.0.0:5000", c.App.Listen)
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestSanitizedMasksPassword(t *testing.T) {
	c := Default()
	c.Kea.Password = "hunter2"

	s := c.Sanitized()
	assert.Equal(t, PasswordMask, s.Kea.Password)
	assert.Equal(t, "hunter2", c.Kea.Password)

	c.Kea.Password = ""
	assert.Equal(t, "", c.Sanitized().Kea.Password)
}

func TestStoreCachesByModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "kea:\n  username: first\n")
	store := NewStore(path)

	c1, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "first", c1.Kea.Username)

	// unchanged file: same snapshot instance
	c2, err := store.Snapshot()
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	// rewrite with a different mtime: snapshot refreshes
	writeConfig(t, path, "kea:\n  username: second\n")
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(2*time.Second)))

	c3, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "second", c3.Kea.Username)
}

func TestStoreSaveInvalidatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewStore(path)

	c, err := store.Snapshot()
	require.NoError(t, err)

	next := *c
	next.Kea.Username = "saved"
	require.NoError(t, store.Save(&next))

	got, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "saved", got.Kea.Username)
}
