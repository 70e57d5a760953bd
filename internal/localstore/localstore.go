// Package localstore is the device-local key/value storage used by the buyer
// client for the cart, the store-summary cache and the guest session token.
//
// Storage is best-effort: callers log and swallow errors rather than failing
// the user-facing operation that triggered the read or write.
package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("localstore: key not found")

// Storage is the minimal key/value contract the client needs.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Dir stores one file per key inside a directory.
type Dir struct {
	mu   sync.Mutex
	path string
}

// NewDir returns a Dir rooted at path. The directory is created lazily on
// the first write.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the root directory.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) file(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("localstore: invalid key %q", key)
	}
	return filepath.Join(d.path, key+".json"), nil
}

// Get reads the value stored under key.
func (d *Dir) Get(key string) ([]byte, error) {
	f, err := d.file(key)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(f)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", f, err)
	}
	return data, nil
}

// Set writes value under key, replacing any previous value. The write goes
// through a temp file and rename so a crash never leaves a torn value.
func (d *Dir) Set(key string, value []byte) error {
	f, err := d.file(key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.path, 0o700); err != nil {
		return fmt.Errorf("creating storage dir: %w", err)
	}
	tmp := f + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", f, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (d *Dir) Remove(key string) error {
	f, err := d.file(key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", f, err)
	}
	return nil
}

// Memory is an in-process Storage, used in tests and when no data
// directory is configured.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty Memory storage.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.items[key] = v
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Keys returns the stored keys. Order is unspecified.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys
}
