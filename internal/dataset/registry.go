// Package dataset resolves dataset keys to vertical URL lists.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/entityscope/entityscope/internal/audit"
)

// Registry is an in-process dataset catalog. Datasets are registered at
// startup, either programmatically or from a directory of JSON files.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]audit.Dataset
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{datasets: map[string]audit.Dataset{}}
}

// Register adds or replaces a dataset under the key. Empty URL lists are
// rejected so Load never hands the orchestrator an unstartable batch.
func (r *Registry) Register(key string, ds audit.Dataset) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("dataset key is required")
	}
	if len(ds.URLs) == 0 {
		return fmt.Errorf("dataset %q has no urls", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasets[key] = ds
	return nil
}

// Load implements audit.DatasetLoader.
func (r *Registry) Load(key string) (audit.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.datasets[key]
	if !ok {
		return audit.Dataset{}, fmt.Errorf("dataset %q: %w", key, audit.ErrNotFound)
	}
	out := ds
	out.URLs = append([]string(nil), ds.URLs...)
	return out, nil
}

// Keys returns the registered dataset keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.datasets))
	for k := range r.datasets {
		keys = append(keys, k)
	}
	return keys
}

// LoadDir registers every *.json file in dir; the filename stem is the
// dataset key.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dataset directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read dataset %s: %w", path, err)
		}
		var ds audit.Dataset
		if err := json.Unmarshal(data, &ds); err != nil {
			return fmt.Errorf("parse dataset %s: %w", path, err)
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		if err := r.Register(key, ds); err != nil {
			return fmt.Errorf("register dataset %s: %w", path, err)
		}
	}
	return nil
}
