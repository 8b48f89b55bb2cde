package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"moviechat/internal/api"
	"moviechat/internal/auth"
	"moviechat/internal/config"
	"moviechat/internal/conversation"
	"moviechat/internal/session"
	"moviechat/internal/settings"
)

// newTestModel builds a chat model against an unreachable backend. The tests
// here exercise Update-side logic only; nothing performs a network call.
func newTestModel(t *testing.T) chatModel {
	t.Helper()

	cfg := config.Config{
		APIBaseURL:     "http://127.0.0.1:1",
		Theme:          "dark",
		RequestTimeout: config.Duration(time.Second),
		DataDir:        t.TempDir(),
	}

	client := api.New(cfg.APIBaseURL, cfg.Timeout())
	creds := auth.NewCredentialStore(cfg.DataDir)
	authStore := auth.NewStore(client, creds)
	registry := session.NewRegistry(client, authStore)
	pipeline := conversation.NewPipeline(client, authStore, nil)
	prefs := settings.NewStore()

	authStore.OnLogout(registry.Clear)
	authStore.OnLogout(pipeline.Clear)
	authStore.OnLogout(prefs.Clear)

	return initChat(cfg, authStore, registry, pipeline, prefs, nil)
}

func TestInitialModelIsAnonymous(t *testing.T) {
	m := newTestModel(t)

	if m.identity.Authenticated {
		t.Error("fresh model should be anonymous")
	}
	if m.mode != modeChat {
		t.Errorf("expected modeChat, got %v", m.mode)
	}
	history := m.renderHistory()
	if !strings.Contains(history, "/login") {
		t.Errorf("anonymous history should point at /login, got %q", history)
	}
}

func TestSubmitWhileSignedOutShowsBanner(t *testing.T) {
	m := newTestModel(t)
	m.textinput.SetValue("recommend a heist movie")

	model, _ := m.handleSubmit()
	next := model.(chatModel)

	if next.banner == "" {
		t.Fatal("expected a banner prompting sign-in")
	}
	if next.isLoading {
		t.Error("signed-out submit must not start loading")
	}
	if len(next.pipeline.Messages()) != 0 {
		t.Error("signed-out submit must not append messages")
	}
}

func TestSubmitWithUnverifiedEmailShowsBanner(t *testing.T) {
	m := newTestModel(t)
	m.identity = auth.Identity{
		Authenticated: true,
		UserID:        "7",
		Username:      "ada",
		Active:        true,
		EmailVerified: false,
	}
	m.textinput.SetValue("recommend a heist movie")

	model, cmd := m.handleSubmit()
	next := model.(chatModel)

	if !strings.Contains(next.banner, "email-verified") {
		t.Fatalf("expected an email-verification banner, got %q", next.banner)
	}
	if next.isLoading {
		t.Error("unverified submit must not start loading")
	}
	if cmd != nil {
		t.Error("unverified submit must not dispatch a send")
	}
	if len(next.pipeline.Messages()) != 0 {
		t.Error("unverified submit must not append messages")
	}
}

func TestStaleSendDoneStillStopsSpinner(t *testing.T) {
	m := newTestModel(t)
	m.isLoading = true

	// Completion for a session the user has since abandoned.
	model, _ := m.Update(sendDoneMsg{sessionID: "abandoned"})
	next := model.(chatModel)

	if next.isLoading {
		t.Fatal("a stale send completion must still stop the spinner")
	}
}

func TestLoginCommandEntersEmailMode(t *testing.T) {
	m := newTestModel(t)
	m.textinput.SetValue("/login")

	model, _ := m.handleSubmit()
	next := model.(chatModel)

	if next.mode != modeEmail {
		t.Fatalf("expected modeEmail, got %v", next.mode)
	}
	if next.flow != flowLogIn {
		t.Errorf("expected flowLogIn, got %v", next.flow)
	}
}

func TestEmailThenPasswordFlow(t *testing.T) {
	m := newTestModel(t)
	m.mode = modeEmail
	m.flow = flowLogIn
	m.textinput.SetValue("ada@example.com")

	model, _ := m.handleSubmit()
	next := model.(chatModel)

	if next.mode != modePassword {
		t.Fatalf("expected modePassword, got %v", next.mode)
	}
	if next.pendingEmail != "ada@example.com" {
		t.Errorf("pendingEmail = %q", next.pendingEmail)
	}

	next.textinput.SetValue("secret")
	model, cmd := next.handleSubmit()
	next = model.(chatModel)

	if next.mode != modeChat {
		t.Errorf("password submit should return to chat mode, got %v", next.mode)
	}
	if !next.isLoading {
		t.Error("password submit should start loading")
	}
	if cmd == nil {
		t.Error("password submit should dispatch the login command")
	}
}

func TestEscCancelsCredentialPrompt(t *testing.T) {
	m := newTestModel(t)
	m.mode = modePassword
	m.flow = flowLogIn
	m.pendingEmail = "ada@example.com"

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	next := model.(chatModel)

	if next.mode != modeChat {
		t.Errorf("esc should cancel the prompt, got mode %v", next.mode)
	}
	if next.pendingEmail != "" {
		t.Error("esc should drop the pending email")
	}
}

func TestUnknownCommandShowsBanner(t *testing.T) {
	m := newTestModel(t)
	m.textinput.SetValue("/bogus")

	model, _ := m.handleSubmit()
	next := model.(chatModel)

	if !strings.Contains(next.banner, "Unknown command") {
		t.Errorf("expected unknown-command banner, got %q", next.banner)
	}
}

func TestBannerExpiryIgnoresStaleSeq(t *testing.T) {
	m := newTestModel(t)

	model, _ := m.showBanner("first", bannerInfo)
	m = model.(chatModel)
	model, _ = m.showBanner("second", bannerInfo)
	m = model.(chatModel)

	// The first banner's timer firing must not clear the second banner.
	model, _ = m.Update(bannerExpiredMsg{seq: m.bannerSeq - 1})
	m = model.(chatModel)
	if m.banner != "second" {
		t.Fatalf("stale expiry cleared the banner, got %q", m.banner)
	}

	model, _ = m.Update(bannerExpiredMsg{seq: m.bannerSeq})
	m = model.(chatModel)
	if m.banner != "" {
		t.Errorf("current expiry should clear the banner, got %q", m.banner)
	}
}

func TestHistoryRecall(t *testing.T) {
	m := newTestModel(t)
	m.inputHistory = []string{"newest", "older", "oldest"}

	m = m.recallHistory(true)
	if got := m.textinput.Value(); got != "newest" {
		t.Fatalf("first recall = %q", got)
	}
	m = m.recallHistory(true)
	if got := m.textinput.Value(); got != "older" {
		t.Fatalf("second recall = %q", got)
	}
	m = m.recallHistory(false)
	if got := m.textinput.Value(); got != "newest" {
		t.Fatalf("down recall = %q", got)
	}
	m = m.recallHistory(false)
	if got := m.textinput.Value(); got != "" {
		t.Fatalf("recall past the end should clear input, got %q", got)
	}
}

func TestLogoutClearsAllStores(t *testing.T) {
	m := newTestModel(t)
	m.textinput.SetValue("/logout")
	m.prefs.Save("key-123")

	model, _ := m.handleSubmit()
	next := model.(chatModel)

	if next.identity.Authenticated {
		t.Error("logout should leave an anonymous identity")
	}
	if next.prefs.APIKey() != "" {
		t.Error("logout should clear settings")
	}
	if got := len(next.sessions.Sessions()); got != 0 {
		t.Errorf("logout should clear sessions, got %d", got)
	}
	if len(next.pipeline.Messages()) != 0 {
		t.Error("logout should clear the conversation")
	}
}

func TestHelpCommand(t *testing.T) {
	m := newTestModel(t)
	m.textinput.SetValue("/help")

	model, _ := m.handleSubmit()
	next := model.(chatModel)

	if !next.showHelp {
		t.Fatal("expected help view")
	}
	if !strings.Contains(next.renderHistory(), "/sessions") {
		t.Error("help should list commands")
	}
}

func TestSessionItemPresentation(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	item := sessionItem{s: session.Session{ID: "s1", Title: "Heist movies", StartedAt: started}}

	if item.Title() != "Heist movies" {
		t.Errorf("Title() = %q", item.Title())
	}
	if item.Description() != "Jun 1 12:30" {
		t.Errorf("Description() = %q", item.Description())
	}

	blank := sessionItem{s: session.Session{ID: "s2"}}
	if blank.Description() != "s2" {
		t.Errorf("zero StartedAt should fall back to the id, got %q", blank.Description())
	}
}
