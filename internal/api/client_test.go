package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The shared http transport keeps idle connections around.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(srv.URL, 2*time.Second), srv
}

func TestLogIn_Success(t *testing.T) {
	var gotBody map[string]string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/users/log-in", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true, "access_token": "tok-123"})
	}))
	defer srv.Close()

	token, err := c.LogIn(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	assert.Equal(t, map[string]string{"email": "a@b.c", "password": "pw"}, gotBody)
}

func TestLogIn_Rejected(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": false})
	}))
	defer srv.Close()

	_, err := c.LogIn(context.Background(), "a@b.c", "bad")
	assert.True(t, IsKind(err, KindRejected), "expected KindRejected, got %v", err)
}

func TestLogIn_HTTPError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := c.LogIn(context.Background(), "a@b.c", "bad")
	require.True(t, IsKind(err, KindHTTP), "expected KindHTTP, got %v", err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestLogIn_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := New(srv.URL, time.Second)
	srv.Close() // connection refused from here on

	_, err := c.LogIn(context.Background(), "a@b.c", "pw")
	assert.True(t, IsKind(err, KindNetwork), "expected KindNetwork, got %v", err)
}

func TestLogIn_DecodeFailure(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	_, err := c.LogIn(context.Background(), "a@b.c", "pw")
	assert.True(t, IsKind(err, KindDecode), "expected KindDecode, got %v", err)
}

func TestSignUp_NumericUserID(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/sign-up", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true, "user_id": 42})
	}))
	defer srv.Close()

	id, err := c.SignUp(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestAuthStatus_BearerAndPayload(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/auth-status", r.URL.Path)
		require.Equal(t, "Bearer tok-9", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub": "7", "username": "ada", "is_active": true,
			"is_admin": false, "email_verified": true, "has_api_key": true,
		})
	}))
	defer srv.Close()

	status, err := c.AuthStatus(context.Background(), "tok-9")
	require.NoError(t, err)
	assert.Equal(t, "7", status.UserID)
	assert.Equal(t, "ada", status.Username)
	assert.True(t, status.Active)
	assert.False(t, status.Admin)
	assert.True(t, status.EmailVerified)
	assert.True(t, status.HasAPIKey)
}

func TestSessions_List(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/get-sessions", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": true,
			"sessions": []map[string]any{
				{"session_id": "s1", "title": "Heist movies", "started_at": started.Format(time.RFC3339)},
			},
		})
	}))
	defer srv.Close()

	sessions, err := c.Sessions(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, "Heist movies", sessions[0].Title)
	assert.True(t, started.Equal(sessions[0].StartedAt))
}

func TestStartSession(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/users/start-session", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": true, "session_id": "s-new"})
	}))
	defer srv.Close()

	id, err := c.StartSession(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "s-new", id)
}

func TestProcess(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/process", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "something with robots", body["prompt"])
		require.Equal(t, "s1", body["session_id"])
		_ = json.NewEncoder(w).Encode(map[string]any{"answer": "Try *Moon* (2009)."})
	}))
	defer srv.Close()

	answer, err := c.Process(context.Background(), "tok", "s1", "something with robots")
	require.NoError(t, err)
	assert.Equal(t, "Try *Moon* (2009).", answer)
}

func TestConversation(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/get-chat", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": true,
			"messages": []map[string]string{
				{"sender": "user", "message": "hi"},
				{"sender": "assistant", "message": "hello"},
			},
		})
	}))
	defer srv.Close()

	msgs, err := c.Conversation(context.Background(), "tok", "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Sender)
	assert.Equal(t, "hello", msgs[1].Message)
}

func TestCall_ContextCancelled(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read; otherwise
		// the client disconnect is never noticed and the context never fires.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Process(ctx, "tok", "s1", "slow")
	assert.True(t, IsKind(err, KindNetwork), "expected KindNetwork, got %v", err)
}
