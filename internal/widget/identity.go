package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrIdentityRequired is returned when a reply needs the visitor's email and
// none has been given yet
var ErrIdentityRequired = errors.New("widget: sender email required")

// IdentityStore remembers the visitor's email per embedding site, keyed by the
// site's API key
type IdentityStore interface {
	Get(apiKey string) (string, error)
	Set(apiKey, email string) error
}

// MemoryIdentityStore keeps identities for the life of the process
type MemoryIdentityStore struct {
	mu  sync.RWMutex
	ids map[string]string
}

// NewMemoryIdentityStore creates an empty store
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{ids: make(map[string]string)}
}

// Get returns the remembered email or "" if none
func (m *MemoryIdentityStore) Get(apiKey string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ids[apiKey], nil
}

// Set remembers email for apiKey
func (m *MemoryIdentityStore) Set(apiKey, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[apiKey] = email
	return nil
}

// FileIdentityStore persists identities as a JSON object on disk
type FileIdentityStore struct {
	mu   sync.Mutex
	path string
}

// NewFileIdentityStore uses the file at path, creating it on first Set
func NewFileIdentityStore(path string) *FileIdentityStore {
	return &FileIdentityStore{path: path}
}

// Get returns the remembered email or "" if none
func (f *FileIdentityStore) Get(apiKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.load()
	if err != nil {
		return "", err
	}
	return ids[apiKey], nil
}

// Set remembers email for apiKey. The file is replaced atomically.
func (f *FileIdentityStore) Set(apiKey, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids, err := f.load()
	if err != nil {
		return err
	}
	ids[apiKey] = strings.TrimSpace(email)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode identities: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create identity directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".identities-*")
	if err != nil {
		return fmt.Errorf("failed to write identities: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write identities: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write identities: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save identities: %w", err)
	}
	return nil
}

func (f *FileIdentityStore) load() (map[string]string, error) {
	ids := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identities: %w", err)
	}
	if len(data) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to parse identities: %w", err)
	}
	return ids, nil
}
