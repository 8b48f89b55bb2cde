// Package api implements the HTTP/JSON client for the movie-finder backend.
// Every method performs one round-trip and maps failures onto the Error
// taxonomy; callers never see raw transport errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"moviechat/internal/logging"
)

// Backend endpoints.
const (
	pathSignUp       = "/users/sign-up"
	pathLogIn        = "/users/log-in"
	pathAuthStatus   = "/users/auth-status"
	pathGetSessions  = "/users/get-sessions"
	pathStartSession = "/users/start-session"
	pathProcess      = "/api/process"
	pathGetChat      = "/users/get-chat"
)

// Session is one conversation thread as reported by the backend.
type Session struct {
	ID        string    `json:"session_id"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// AuthStatus is the payload of GET /users/auth-status. The backend does not
// return the account email on this path.
type AuthStatus struct {
	UserID        string `json:"sub"`
	Username      string `json:"username"`
	Active        bool   `json:"is_active"`
	Admin         bool   `json:"is_admin"`
	EmailVerified bool   `json:"email_verified"`
	HasAPIKey     bool   `json:"has_api_key"`
}

// TranscriptEntry is one stored turn from GET /users/get-chat.
type TranscriptEntry struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// Client talks to the movie-finder backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New creates a Client. timeout bounds each individual request.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logging.Get(logging.CategoryAPI),
	}
}

// SignUp creates an account. Returns the new user id.
func (c *Client) SignUp(ctx context.Context, email, password string) (string, error) {
	const op = "sign-up"
	var out struct {
		Result bool            `json:"result"`
		UserID json.RawMessage `json:"user_id"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, op, http.MethodPost, pathSignUp, "", body, &out); err != nil {
		return "", err
	}
	if !out.Result {
		return "", rejectedErr(op)
	}
	return rawToString(out.UserID), nil
}

// LogIn exchanges credentials for a bearer token.
func (c *Client) LogIn(ctx context.Context, email, password string) (string, error) {
	const op = "log-in"
	var out struct {
		Result      bool   `json:"result"`
		AccessToken string `json:"access_token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, op, http.MethodPost, pathLogIn, "", body, &out); err != nil {
		return "", err
	}
	if !out.Result || out.AccessToken == "" {
		return "", rejectedErr(op)
	}
	return out.AccessToken, nil
}

// AuthStatus verifies a stored token and returns the identity the backend
// associates with it.
func (c *Client) AuthStatus(ctx context.Context, token string) (AuthStatus, error) {
	const op = "auth-status"
	var out struct {
		AuthStatus
		UserID json.RawMessage `json:"sub"`
	}
	if err := c.call(ctx, op, http.MethodGet, pathAuthStatus, token, nil, &out); err != nil {
		return AuthStatus{}, err
	}
	status := out.AuthStatus
	status.UserID = rawToString(out.UserID)
	return status, nil
}

// Sessions lists the caller's conversation sessions.
func (c *Client) Sessions(ctx context.Context, token string) ([]Session, error) {
	const op = "get-sessions"
	var out struct {
		Result   bool      `json:"result"`
		Sessions []Session `json:"sessions"`
	}
	if err := c.call(ctx, op, http.MethodGet, pathGetSessions, token, nil, &out); err != nil {
		return nil, err
	}
	if !out.Result {
		return nil, rejectedErr(op)
	}
	return out.Sessions, nil
}

// StartSession mints a new conversation session and returns its id.
func (c *Client) StartSession(ctx context.Context, token string) (string, error) {
	const op = "start-session"
	var out struct {
		Result    bool            `json:"result"`
		SessionID json.RawMessage `json:"session_id"`
	}
	if err := c.call(ctx, op, http.MethodGet, pathStartSession, token, nil, &out); err != nil {
		return "", err
	}
	if !out.Result {
		return "", rejectedErr(op)
	}
	return rawToString(out.SessionID), nil
}

// Process sends a prompt for the given session and returns the assistant's
// answer. This is the inference round-trip; it can take a while.
func (c *Client) Process(ctx context.Context, token, sessionID, prompt string) (string, error) {
	const op = "process"
	var out struct {
		Answer string `json:"answer"`
	}
	body := map[string]string{"prompt": prompt, "session_id": sessionID}
	if err := c.call(ctx, op, http.MethodPost, pathProcess, token, body, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// Conversation fetches the stored transcript for a session.
func (c *Client) Conversation(ctx context.Context, token, sessionID string) ([]TranscriptEntry, error) {
	const op = "get-chat"
	var out struct {
		Result   bool              `json:"result"`
		Messages []TranscriptEntry `json:"messages"`
	}
	body := map[string]string{"session_id": sessionID}
	if err := c.call(ctx, op, http.MethodPost, pathGetChat, token, body, &out); err != nil {
		return nil, err
	}
	if !out.Result {
		return nil, rejectedErr(op)
	}
	return out.Messages, nil
}

// call performs one JSON round-trip and decodes the response into out.
func (c *Client) call(ctx context.Context, op, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return decodeErr(op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return netErr(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("op", op), zap.Error(err))
		return netErr(op, err)
	}
	defer resp.Body.Close()

	c.log.Debug("request complete",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpErr(op, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return decodeErr(op, err)
	}
	return nil
}

// rawToString normalizes an id field that the backend may send as either a
// JSON string or a number.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}
