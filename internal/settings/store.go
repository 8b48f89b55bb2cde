// Package settings holds user preferences scoped to the current identity.
package settings

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"moviechat/internal/logging"
)

// Store keeps the per-identity preferences. The API key lives only in memory
// for the lifetime of the login; the backend is the durable copy.
type Store struct {
	log *zap.Logger

	mu     sync.RWMutex
	apiKey string
}

func NewStore() *Store {
	return &Store{log: logging.Get(logging.CategoryStore)}
}

// APIKey returns the stored key, "" when unset.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

// HasAPIKey reports whether a key is set.
func (s *Store) HasAPIKey() bool {
	return s.APIKey() != ""
}

// Save replaces the stored key in place.
func (s *Store) Save(key string) {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	s.apiKey = key
	s.mu.Unlock()
	s.log.Info("settings saved", zap.Bool("has_api_key", key != ""))
}

// Clear wipes the preferences. Registered as an AuthStore logout hook.
func (s *Store) Clear() {
	s.mu.Lock()
	s.apiKey = ""
	s.mu.Unlock()
	s.log.Debug("settings cleared")
}
