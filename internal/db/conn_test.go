package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDirAndMigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)

	require.NoError(t, d.Migrate())
	require.NoError(t, d.Migrate())

	var version int
	require.NoError(t, d.Conn().QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)

	var n int
	require.NoError(t, d.Conn().QueryRow("SELECT COUNT(*) FROM runs").Scan(&n))
	assert.Zero(t, n)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/data/runs.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "runs.db"), got)

	got, err = expandHome("/tmp/runs.db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/runs.db", got)
}
