package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectImages(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	for _, name := range []string{"a.jpg", "b.PNG", "notes.txt", "sub/c.jpeg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	images, err := collectImages(dir, true)
	require.NoError(t, err)
	assert.Len(t, images, 3)

	flat, err := collectImages(dir, false)
	require.NoError(t, err)
	assert.Len(t, flat, 2)
}

func TestResolveDBPathPrefersFlag(t *testing.T) {
	old := dbPath
	t.Cleanup(func() { dbPath = old })

	dbPath = "/tmp/custom.db"
	path, err := resolveDBPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", path)

	dbPath = ""
	t.Setenv("FACEVAULT_DB_PATH", "/tmp/env.db")
	path, err = resolveDBPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", path)
}
