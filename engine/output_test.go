package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectOutputFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.tif"), []byte("bb"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tif"), []byte("a"), 0644))
	// Subdirectories and their contents are not listed.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.tif"), []byte("c"), 0644))

	files := CollectOutputFiles(dir)
	require.Len(t, files, 2)
	assert.Equal(t, "a.tif", files[0].Name)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, filepath.Join(dir, "a.tif"), files[0].Path)
	assert.Equal(t, "b.tif", files[1].Name)
}

func TestCollectOutputFilesMissingDir(t *testing.T) {
	assert.Empty(t, CollectOutputFiles(filepath.Join(t.TempDir(), "nope")))
	assert.Empty(t, CollectOutputFiles(""))
}

func TestCollectOutputFilesEmptyDir(t *testing.T) {
	files := CollectOutputFiles(t.TempDir())
	assert.NotNil(t, files)
	assert.Empty(t, files)
}
