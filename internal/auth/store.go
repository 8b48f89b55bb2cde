// Package auth holds the client-side identity state machine. The Store owns
// the persisted bearer credential and is the only component allowed to
// mutate Identity; everything downstream reads snapshots.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"moviechat/internal/api"
	"moviechat/internal/logging"
)

// anonymousUsername mirrors the placeholder the web client showed for
// logged-out users.
const anonymousUsername = "user"

// Identity is the authenticated user's attributes as known to the client.
// Authenticated == true implies UserID is non-empty.
type Identity struct {
	Authenticated bool
	UserID        string
	Email         string
	Username      string
	Active        bool
	Admin         bool
	EmailVerified bool
	HasAPIKey     bool
}

// anonymous is the reset state after logout or failed verification.
func anonymous() Identity {
	return Identity{Username: anonymousUsername}
}

// CanChat reports whether this identity may send messages and load
// conversations.
func (id Identity) CanChat() bool {
	return id.Authenticated && id.Active && id.EmailVerified
}

// Outcome is the side-channel result of the last login/signup attempt,
// consumed by the UI for transient banners.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// ErrNoCredential is returned by Token when nothing is stored.
var ErrNoCredential = errors.New("no stored credential")

// accessClaims is the JWT payload issued by the backend on login. The token
// is decoded, not verified: validation happens server-side on every call.
type accessClaims struct {
	Username      string `json:"username"`
	Active        bool   `json:"is_active"`
	Admin         bool   `json:"is_admin"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Store is the AuthStore. Collaborating stores are cleared through hooks
// registered with OnLogout so a logout is never partially observable.
type Store struct {
	api   *api.Client
	creds *CredentialStore
	log   *zap.Logger

	mu          sync.RWMutex
	identity    Identity
	token       string
	lastOutcome Outcome
	subscribers []func(Identity)
	onLogout    []func()
}

// NewStore wires the AuthStore to the backend client and credential slot.
func NewStore(client *api.Client, creds *CredentialStore) *Store {
	return &Store{
		api:      client,
		creds:    creds,
		log:      logging.Get(logging.CategoryAuth),
		identity: anonymous(),
	}
}

// Identity returns a snapshot of the current identity.
func (s *Store) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Token returns the in-memory bearer token for authenticated calls.
func (s *Store) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// LastOutcome returns and clears the last login/signup outcome.
func (s *Store) LastOutcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.lastOutcome
	s.lastOutcome = OutcomeNone
	return out
}

// Subscribe registers fn to run after every identity transition.
func (s *Store) Subscribe(fn func(Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// OnLogout registers a clear hook run as part of LogOut and failed
// verification, before subscribers observe the anonymous identity.
func (s *Store) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// SignUp creates an account. It never touches Identity: the user still has
// to log in afterwards.
func (s *Store) SignUp(ctx context.Context, email, password string) error {
	userID, err := s.api.SignUp(ctx, email, password)
	if err != nil {
		s.setOutcome(OutcomeFailure)
		s.log.Warn("signup failed", zap.Error(err))
		return err
	}
	s.setOutcome(OutcomeSuccess)
	s.log.Info("account created", zap.String("user_id", userID))
	return nil
}

// LogIn authenticates, persists the credential, and derives Identity from
// the token payload. On failure Identity is left untouched and no
// credential is written.
func (s *Store) LogIn(ctx context.Context, email, password string) (Identity, error) {
	token, err := s.api.LogIn(ctx, email, password)
	if err != nil {
		s.setOutcome(OutcomeFailure)
		s.log.Warn("login failed", zap.Error(err))
		return s.Identity(), err
	}

	claims, err := decodeClaims(token)
	if err != nil {
		s.setOutcome(OutcomeFailure)
		s.log.Warn("login token undecodable", zap.Error(err))
		return s.Identity(), err
	}

	if err := s.creds.Save(token); err != nil {
		// Login still succeeds for this process; only resumption is lost.
		s.log.Warn("failed to persist credential", zap.Error(err))
	}

	id := Identity{
		Authenticated: true,
		UserID:        claims.Subject,
		Email:         email,
		Username:      claims.Username,
		Active:        claims.Active,
		Admin:         claims.Admin,
		EmailVerified: claims.EmailVerified,
	}

	s.mu.Lock()
	s.identity = id
	s.token = token
	s.lastOutcome = OutcomeSuccess
	subs := append([]func(Identity){}, s.subscribers...)
	s.mu.Unlock()

	s.log.Info("logged in", zap.String("user_id", id.UserID), zap.String("username", id.Username))
	notify(subs, id)
	return id, nil
}

// VerifySession resumes a previous login from the persisted credential.
// Called once at client start. With no stored credential it is a no-op and
// performs no network call. Any failure discards the credential and resets
// Identity to anonymous.
//
// The auth-status payload carries no email, so a resumed Identity has an
// empty Email until the next explicit login.
func (s *Store) VerifySession(ctx context.Context) (Identity, error) {
	token, ok := s.creds.Load()
	if !ok {
		s.log.Debug("no stored credential, staying anonymous")
		return s.Identity(), nil
	}

	status, err := s.api.AuthStatus(ctx, token)
	if err != nil {
		s.log.Warn("session verification failed, discarding credential", zap.Error(err))
		s.reset()
		return s.Identity(), err
	}

	id := Identity{
		Authenticated: true,
		UserID:        status.UserID,
		Username:      status.Username,
		Active:        status.Active,
		Admin:         status.Admin,
		EmailVerified: status.EmailVerified,
		HasAPIKey:     status.HasAPIKey,
	}

	s.mu.Lock()
	s.identity = id
	s.token = token
	subs := append([]func(Identity){}, s.subscribers...)
	s.mu.Unlock()

	s.log.Info("session resumed", zap.String("username", id.Username))
	notify(subs, id)
	return id, nil
}

// LogOut discards the credential and resets all dependent stores.
// Idempotent: logging out twice leaves the same anonymous state.
func (s *Store) LogOut() {
	s.reset()
	s.log.Info("logged out")
}

// reset clears credential and identity and runs the logout hooks before any
// subscriber sees the anonymous identity.
func (s *Store) reset() {
	if err := s.creds.Clear(); err != nil {
		s.log.Warn("failed to clear credential", zap.Error(err))
	}

	s.mu.Lock()
	s.identity = anonymous()
	s.token = ""
	hooks := append([]func(){}, s.onLogout...)
	subs := append([]func(Identity){}, s.subscribers...)
	id := s.identity
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	notify(subs, id)
}

func (s *Store) setOutcome(o Outcome) {
	s.mu.Lock()
	s.lastOutcome = o
	s.mu.Unlock()
}

func notify(subs []func(Identity), id Identity) {
	for _, fn := range subs {
		fn(id)
	}
}

// decodeClaims extracts the payload without signature verification, the same
// way the original client read the token. The backend re-validates the
// signature on every request.
func decodeClaims(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("access token missing subject")
	}
	return claims, nil
}
