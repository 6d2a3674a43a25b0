package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	header := []string{"placement", "impressions"}
	rows := [][]string{
		{"yt-1", "600"},
		{"yt-2", "20"},
	}

	path, err := store.Write(NamespaceReport, "111-run1", header, rows)
	require.NoError(t, err)
	assert.Equal(t, "111-run1.csv", filepath.Base(path))

	gotHeader, gotRows, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, rows, gotRows)
}

func TestStore_EmptyArtifactIsValid(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	path, err := store.Write(NamespaceReport, "111-empty", []string{"placement"}, nil)
	require.NoError(t, err)

	header, rows, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"placement"}, header)
	assert.Empty(t, rows)
}

func TestStore_ListSkipsTempAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root, nil)
	require.NoError(t, err)

	_, err = store.Write(NamespaceChannel, "b", []string{"placement"}, nil)
	require.NoError(t, err)
	_, err = store.Write(NamespaceChannel, "a", []string{"placement"}, nil)
	require.NoError(t, err)

	// A crashed writer leaves a temp file behind; readers must not see it.
	dir := filepath.Join(root, NamespaceChannel)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600))

	paths, err := store.List(NamespaceChannel)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "a.csv", filepath.Base(paths[0]))
	assert.Equal(t, "b.csv", filepath.Base(paths[1]))
}

func TestStore_ListMissingNamespaceIsEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(store.Root(), NamespaceExclusion)))

	paths, err := store.List(NamespaceExclusion)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestStore_RewriteSameNameReplacesContent(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Write(NamespaceReport, "111-run1", []string{"placement"}, [][]string{{"yt-1"}})
	require.NoError(t, err)
	path, err := store.Write(NamespaceReport, "111-run1", []string{"placement"}, [][]string{{"yt-1"}, {"yt-2"}})
	require.NoError(t, err)

	paths, err := store.List(NamespaceReport)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	_, rows, err := store.Read(path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
