package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/harvester/internal/model"
)

// LeaseStore persists the current proxy lease in a small JSON file.
// There is no file lock; one crawler process owns a lease file.
type LeaseStore struct {
	path string
}

// NewLeaseStore returns a LeaseStore writing to path.
func NewLeaseStore(path string) *LeaseStore {
	return &LeaseStore{path: path}
}

// Path returns the lease file path.
func (s *LeaseStore) Path() string {
	return s.path
}

// Load returns the cached lease. A missing file yields a zero lease.
func (s *LeaseStore) Load() (model.ProxyLease, error) {
	var lease model.ProxyLease

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return lease, nil
	}
	if err != nil {
		return lease, fmt.Errorf("failed to read proxy lease: %w", err)
	}
	if err := json.Unmarshal(data, &lease); err != nil {
		return model.ProxyLease{}, fmt.Errorf("failed to parse proxy lease: %w", err)
	}
	return lease, nil
}

// Save writes lease atomically: a temp file in the same directory is
// written, synced and renamed over the lease file.
func (s *LeaseStore) Save(lease model.ProxyLease) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create lease directory: %w", err)
	}

	data, err := json.MarshalIndent(lease, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize proxy lease: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".proxy_lease-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lease file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp lease file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp lease file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp lease file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace lease file: %w", err)
	}
	return nil
}

// Clear removes the lease file. A missing file is not an error.
func (s *LeaseStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove proxy lease: %w", err)
	}
	return nil
}
