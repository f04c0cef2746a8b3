package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreWritesFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := NewLocalStore(LocalConfig{BaseDir: base})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "jobs/j1/home.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(base, "jobs/j1/home.html"), uri)

	data, err := os.ReadFile(filepath.Join(base, "jobs/j1/home.html"))
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(data))
}

func TestLocalStoreCreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "nested", "evidence")
	_, err := NewLocalStore(LocalConfig{BaseDir: base})
	require.NoError(t, err)
	info, err := os.Stat(base)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewLocalStore(LocalConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestLocalStoreRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewLocalStore(LocalConfig{})
	require.Error(t, err)

	store, err := NewLocalStore(LocalConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "  ", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	payload := []byte("<html>evidence</html>")

	uri, err := store.PutObject(context.Background(), "jobs/j1/home.html", "text/html", payload)
	require.NoError(t, err)
	require.Equal(t, "mem://jobs/j1/home.html", uri)

	// Mutating the caller's slice must not affect the stored copy.
	payload[0] = 'X'
	stored, ok := store.Object("jobs/j1/home.html")
	require.True(t, ok)
	require.Equal(t, "<html>evidence</html>", string(stored))
}
