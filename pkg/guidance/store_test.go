package guidance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndLoad_RoundTrips(t *testing.T) {
	store := NewStore(t.TempDir())
	g := New("org/repo", "deadbeef", []string{"one", "two", "three"}, 1000).Copy(WithVersion(2))

	require.NoError(t, store.Save(g))
	assert.True(t, store.Exists(2))
	assert.False(t, store.Exists(3))

	loaded, err := store.Load(2)
	require.NoError(t, err)
	assert.Equal(t, g, loaded)
}

func TestStore_Load_MissingVersionReturnsErrNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load(7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveBestAndLoadBest(t *testing.T) {
	store := NewStore(t.TempDir())
	g := New("org/repo", "deadbeef", []string{"a", "b", "c"}, 1000).Copy(WithVersion(5))

	require.NoError(t, store.SaveBest(g))
	loaded, err := store.LoadBest()
	require.NoError(t, err)
	assert.Equal(t, g, loaded)

	better := g.Copy(WithVersion(9))
	require.NoError(t, store.SaveBest(better))
	loaded, err = store.LoadBest()
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Version)
}

func TestStore_LoadBest_MissingReturnsErrNotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.LoadBest()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_VersionAndBestPaths(t *testing.T) {
	store := NewStore("/tmp/guidance/org-repo")
	assert.Equal(t, filepath.Join("/tmp/guidance/org-repo", "versions"), store.VersionsDir())
	assert.Equal(t, filepath.Join("/tmp/guidance/org-repo", "versions", "v3.json"), store.VersionPath(3))
	assert.Equal(t, filepath.Join("/tmp/guidance/org-repo", "best_guidance.json"), store.BestPath())
}

func TestLoadFile_MissingFileWrapsErrNotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadFile_InvalidJSONReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
