// Package storage defines where downloaded documents are written. Backends live in the
// local, memory and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrPathRequired is returned when an object path is empty.
var ErrPathRequired = errors.New("object path is required")

// BlobStore persists an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NoOp discards every object. Useful for dry runs that only validate downloads.
type NoOp struct{}

// PutObject drains r and returns a noop:// URI.
func (NoOp) PutObject(_ context.Context, objectPath string, _ string, r io.Reader) (string, error) {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "noop://" + clean, nil
}

// CleanPath normalizes an object path to a slash separated relative key.
func CleanPath(objectPath string) (string, error) {
	trimmed := strings.TrimSpace(objectPath)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	clean := strings.TrimPrefix(path.Clean("/"+trimmed), "/")
	if clean == "" {
		return "", ErrPathRequired
	}
	return clean, nil
}
