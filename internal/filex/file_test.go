package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesNestedDirs(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a", "b", "local.db")

	require.NoError(t, EnsureParentDir(path))

	fi, err := os.Stat(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestEnsureParentDir_BareFileName(t *testing.T) {
	assert.NoError(t, EnsureParentDir("local.db"))
}

func TestEnsureParentDir_ParentIsAFile(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := EnsureParentDir(filepath.Join(blocker, "sub", "local.db"))
	assert.Error(t, err)
}

func TestTempPath_DoesNotCreateFile(t *testing.T) {
	dir := t.TempDir()
	p, err := TempPath(dir, "snap-*.db")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(p))
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}
