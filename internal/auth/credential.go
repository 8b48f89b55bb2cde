package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// credentialFileName is the single slot for the bearer token on disk.
const credentialFileName = "credentials.json"

// credentialFile is the on-disk format.
type credentialFile struct {
	AccessToken string    `json:"access_token"`
	SavedAt     time.Time `json:"saved_at"`
}

// CredentialStore persists the bearer token. AuthStore is the only writer;
// presence of a token never implies validity.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewCredentialStore stores the credential under dataDir.
func NewCredentialStore(dataDir string) *CredentialStore {
	return &CredentialStore{path: filepath.Join(dataDir, credentialFileName)}
}

// Load returns the stored token, or ("", false) when none is stored.
func (s *CredentialStore) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil || cf.AccessToken == "" {
		return "", false
	}
	return cf.AccessToken, true
}

// Save writes the token with owner-only permissions.
func (s *CredentialStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	data, err := json.MarshalIndent(credentialFile{AccessToken: token, SavedAt: time.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Clear removes the stored token. Removing an already-absent credential is
// not an error.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
