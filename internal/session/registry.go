// Package session tracks the user's conversation sessions and which one is
// active. The backend owns the canonical list; the Registry holds the
// client's view of it plus the active selection.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"moviechat/internal/api"
	"moviechat/internal/logging"
)

// provisionalTitle labels a freshly created session until the backend
// derives a real title from the first prompt.
const provisionalTitle = "Untitled chat"

// ErrNotAuthenticated is returned by operations that need a logged-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session is one conversation thread.
type Session struct {
	ID        string
	Title     string
	StartedAt time.Time
}

// TokenSource supplies the bearer token for authenticated calls. Satisfied
// by *auth.Store.
type TokenSource interface {
	Token() (string, error)
}

// Registry is the SessionRegistry. All reads return snapshots; the backend
// list fully replaces the local one on every refresh.
type Registry struct {
	api    *api.Client
	tokens TokenSource
	log    *zap.Logger

	// flight collapses concurrent refreshes into one backend call.
	flight singleflight.Group

	mu       sync.RWMutex
	sessions []Session
	activeID string
}

// NewRegistry wires the registry to the backend client and token source.
func NewRegistry(client *api.Client, tokens TokenSource) *Registry {
	return &Registry{
		api:    client,
		tokens: tokens,
		log:    logging.Get(logging.CategorySession),
	}
}

// Sessions returns a snapshot of the known sessions, newest first as the
// backend reports them.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Active returns the active session id, or "" when none is selected.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// ActiveTitle returns the title of the active session, or "" when none is
// selected or the session is unknown.
func (r *Registry) ActiveTitle() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ID == r.activeID {
			return s.Title
		}
	}
	return ""
}

// Refresh replaces the local list with the backend's. Concurrent calls
// collapse into a single request. The active selection survives a refresh
// even if the backend no longer lists it; selection is only cleared by
// Clear or an explicit Select.
func (r *Registry) Refresh(ctx context.Context) ([]Session, error) {
	token, err := r.tokens.Token()
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	v, err, _ := r.flight.Do("refresh", func() (any, error) {
		list, err := r.api.Sessions(ctx, token)
		if err != nil {
			return nil, err
		}
		sessions := make([]Session, len(list))
		for i, s := range list {
			sessions[i] = Session{ID: s.ID, Title: s.Title, StartedAt: s.StartedAt}
		}
		return sessions, nil
	})
	if err != nil {
		r.log.Warn("session refresh failed", zap.Error(err))
		return nil, err
	}

	sessions := v.([]Session)
	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()

	r.log.Debug("sessions refreshed", zap.Int("count", len(sessions)))
	return r.Sessions(), nil
}

// Create mints a new session on the backend, inserts it locally with a
// provisional title, and makes it active.
func (r *Registry) Create(ctx context.Context) (Session, error) {
	token, err := r.tokens.Token()
	if err != nil {
		return Session{}, ErrNotAuthenticated
	}

	id, err := r.api.StartSession(ctx, token)
	if err != nil {
		r.log.Warn("session create failed", zap.Error(err))
		return Session{}, err
	}

	s := Session{ID: id, Title: provisionalTitle, StartedAt: time.Now()}
	r.mu.Lock()
	r.sessions = append([]Session{s}, r.sessions...)
	r.activeID = s.ID
	r.mu.Unlock()

	r.log.Info("session created", zap.String("session_id", id))
	return s, nil
}

// Select makes the given session active. Selecting an id that is not in the
// local list is an error; the caller should Refresh first.
func (r *Registry) Select(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id {
			r.activeID = id
			return s, nil
		}
	}
	return Session{}, errors.New("unknown session: " + id)
}

// Clear drops the list and the active selection. Registered as an AuthStore
// logout hook so a logout atomically empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.sessions = nil
	r.activeID = ""
	r.mu.Unlock()
	r.log.Debug("registry cleared")
}
