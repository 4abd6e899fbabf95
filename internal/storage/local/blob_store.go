// Package local writes documents below a base directory of an afero filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/storage"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where documents are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// CreateDir allows New to create a missing BaseDir.
	CreateDir bool `mapstructure:"create_dir" yaml:"create_dir"`
}

// BlobStore writes documents to a filesystem.
type BlobStore struct {
	fs      afero.Fs
	baseDir string
}

// New validates the base directory and returns a store rooted there.
func New(fs afero.Fs, cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := fs.Stat(cfg.BaseDir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case err != nil && !cfg.CreateDir:
		return nil, fmt.Errorf("base directory %s does not exist", cfg.BaseDir)
	case err != nil:
		if mkErr := fs.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	}

	// Probe for write permission.
	probe, err := afero.TempFile(fs, cfg.BaseDir, ".writable_test")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := fs.Remove(name); err != nil {
		return nil, fmt.Errorf("failed to clean up probe file: %w", err)
	}

	return &BlobStore{fs: fs, baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// PutObject writes the document and returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, objectPath string, _ string, r io.Reader) (string, error) {
	key, err := storage.CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := s.fs.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}
	if err := afero.WriteReader(s.fs, fullPath, r); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "file://" + fullPath, nil
}
