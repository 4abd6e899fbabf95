// Package memory stores documents in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/storage"
)

// Object is a stored document.
type Object struct {
	ContentType string
	Data        []byte
}

// BlobStore keeps objects in a map and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// PutObject stores a copy of the content.
func (s *BlobStore) PutObject(_ context.Context, objectPath string, contentType string, r io.Reader) (string, error) {
	key, err := storage.CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{ContentType: contentType, Data: data}
	return "memory://" + key, nil
}

// Object returns a stored object.
func (s *BlobStore) Object(objectPath string) (Object, bool) {
	key, err := storage.CleanPath(objectPath)
	if err != nil {
		return Object{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Paths lists the stored keys in order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for key := range s.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
