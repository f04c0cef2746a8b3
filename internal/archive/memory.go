package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps evidence in process memory. Used in tests and when the
// archive is disabled but callers still expect a URI back.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

// PutObject records the payload and returns a mem:// URI.
func (s *MemoryStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = bytes.Clone(data)
	return "mem://" + path, nil
}

// Object returns a stored payload for assertions.
func (s *MemoryStore) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}
