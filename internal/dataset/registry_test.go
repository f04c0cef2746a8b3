package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entityscope/entityscope/internal/audit"
)

func TestRegisterAndLoad(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register("saas", audit.Dataset{
		Vertical: "saas",
		URLs:     []string{"https://a.example"},
	}))

	ds, err := reg.Load("saas")
	require.NoError(t, err)
	require.Equal(t, "saas", ds.Vertical)
	require.Equal(t, []string{"https://a.example"}, ds.URLs)

	// Loaded copies must not alias the registry's slice.
	ds.URLs[0] = "https://mutated.example"
	again, err := reg.Load("saas")
	require.NoError(t, err)
	require.Equal(t, "https://a.example", again.URLs[0])
}

func TestLoadUnknownKey(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.Load("missing")
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.Error(t, reg.Register("", audit.Dataset{URLs: []string{"https://a.example"}}))
	require.Error(t, reg.Register("empty", audit.Dataset{}))
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	saas := `{"vertical":"saas","description":"SaaS companies","urls":["https://a.example","https://b.example"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "saas.json"), []byte(saas), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	reg := NewRegistry()
	require.NoError(t, reg.LoadDir(dir))
	require.Equal(t, []string{"saas"}, reg.Keys())

	ds, err := reg.Load("saas")
	require.NoError(t, err)
	require.Len(t, ds.URLs, 2)
}

func TestLoadDirRejectsMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))

	reg := NewRegistry()
	require.Error(t, reg.LoadDir(dir))
}
