// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ExistingDir", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/docs", 0o750))
		store, err := local.New(fs, local.Config{BaseDir: "/docs"})
		require.NoError(t, err)
		assert.NotNil(t, store)

		entries, err := afero.ReadDir(fs, "/docs")
		require.NoError(t, err)
		assert.Empty(t, entries, "probe file must be removed")
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(afero.NewMemMapFs(), local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesDirWhenAllowed", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		_, err := local.New(fs, local.Config{BaseDir: "/new/docs", CreateDir: true})
		require.NoError(t, err)
		exists, err := afero.DirExists(fs, "/new/docs")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("MissingDirWithoutCreate", func(t *testing.T) {
		_, err := local.New(afero.NewMemMapFs(), local.Config{BaseDir: "/absent"})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0o600))
		_, err := local.New(fs, local.Config{BaseDir: "/file"})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("/docs", 0o750))
		_, err := local.New(afero.NewReadOnlyFs(base), local.Config{BaseDir: "/docs"})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := local.New(fs, local.Config{BaseDir: "/docs", CreateDir: true})
	require.NoError(t, err)

	t.Run("NestedPath", func(t *testing.T) {
		data := []byte("<cfdi/>")
		uri, err := store.PutObject(context.Background(), "rfc/xml/abc.xml", "application/xml", bytes.NewReader(data))
		require.NoError(t, err)

		expected := filepath.Join("/docs", "rfc", "xml", "abc.xml")
		assert.Equal(t, "file://"+expected, uri)
		readData, err := afero.ReadFile(fs, expected)
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", bytes.NewReader([]byte("data")))
		assert.Error(t, err)
	})

	t.Run("TraversalStaysInside", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "../../escape.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-")))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join("/docs", "escape.pdf"), uri)
	})
}
