package bundle_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SysdataSpA/Docker/pkg/bundle"
	"github.com/SysdataSpA/Docker/pkg/errors"
)

func TestExportImportRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	files := map[string]string{
		"0beec7b5ea3f0fdbc95d0dd47f3c5bc275da8a33": "first resource",
		"62cdb7020ff920e5aa642c3d4066950dd1f01f4d": "second resource",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, name), []byte(content), 0o644))
	}

	archivePath := filepath.Join(t.TempDir(), "seed.tar.gz")
	require.NoError(t, bundle.Export(context.Background(), srcDir, archivePath))
	require.FileExists(t, archivePath)

	destDir := filepath.Join(t.TempDir(), "seed_resources")
	require.NoError(t, bundle.Import(context.Background(), archivePath, destDir))

	for name, content := range files {
		data, err := os.ReadFile(filepath.Join(destDir, name))
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	}
}

func TestExportEmptyDirectory(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "seed.tar.gz")

	err := bundle.Export(context.Background(), t.TempDir(), archivePath)

	require.ErrorIs(t, err, errors.ErrResourceEmpty)
	assert.NoFileExists(t, archivePath)
}

func TestExportSourceNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	err := bundle.Export(context.Background(), file, filepath.Join(t.TempDir(), "seed.tar.gz"))

	require.ErrorIs(t, err, errors.ErrLocalStorage)
}

func TestImportMissingArchive(t *testing.T) {
	err := bundle.Import(context.Background(), filepath.Join(t.TempDir(), "absent.tar.gz"), t.TempDir())

	require.ErrorIs(t, err, errors.ErrBundleMissing)
}

func TestImportOverwritesExisting(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "key"), []byte("new"), 0o644))

	archivePath := filepath.Join(t.TempDir(), "seed.tar.gz")
	require.NoError(t, bundle.Export(context.Background(), srcDir, archivePath))

	destDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "key"), []byte("stale"), 0o644))

	require.NoError(t, bundle.Import(context.Background(), archivePath, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "key"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
