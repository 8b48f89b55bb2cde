// Slash command handling and background commands for the chat interface.
package main

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `## Commands

| Command | Description |
|---------|-------------|
| /login | Sign in with email and password |
| /signup | Create a new account |
| /logout | Sign out and clear local state |
| /sessions | Browse your conversation sessions |
| /new | Start a new conversation |
| /settings | Set your Gemini API key |
| /help | Show this help |
| /quit | Exit |

## Tips
- **Enter** sends a message
- **↑/↓** recall previous prompts
- **Esc** closes the session list or cancels a prompt
`

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())

	switch m.mode {
	case modeEmail:
		if input == "" {
			return m, nil
		}
		m.pendingEmail = input
		m.mode = modePassword
		m.textinput.EchoMode = textinput.EchoPassword
		m.textinput.Placeholder = "Password"
		m.textinput.Reset()
		return m, nil

	case modePassword:
		if input == "" {
			return m, nil
		}
		email, flow := m.pendingEmail, m.flow
		m = m.resetInputMode()
		m.isLoading = true
		if flow == flowSignUp {
			return m, tea.Batch(m.spinner.Tick, m.signUp(email, input))
		}
		return m, tea.Batch(m.spinner.Tick, m.logIn(email, input))

	case modeAPIKey:
		if input == "" {
			return m, nil
		}
		m.prefs.Save(input)
		m = m.resetInputMode()
		return m.showBanner("Settings saved.", bannerSuccess)
	}

	if input == "" {
		return m, nil
	}
	m.showHelp = false

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	if !m.identity.Authenticated {
		m.textinput.Reset()
		return m.showBanner("Sign in first: /login or /signup", bannerError)
	}
	if !m.identity.CanChat() {
		m.textinput.Reset()
		return m.showBanner("Your account must be active and email-verified to chat.", bannerError)
	}

	m.inputHistory = append([]string{input}, m.inputHistory...)
	m.historyIdx = -1
	if m.archive != nil {
		_ = m.archive.AppendInput(input)
	}

	m.textinput.Reset()
	m.isLoading = true
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()

	return m, tea.Batch(m.spinner.Tick, m.sendPrompt(input))
}

func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	m.textinput.Reset()

	switch strings.Fields(input)[0] {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/help":
		m.showHelp = true
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoTop()
		return m, nil

	case "/login":
		if m.identity.Authenticated {
			return m.showBanner("Already signed in as "+m.identity.Username, bannerInfo)
		}
		m.mode = modeEmail
		m.flow = flowLogIn
		m.textinput.Placeholder = "Email"
		return m, nil

	case "/signup":
		if m.identity.Authenticated {
			return m.showBanner("Already signed in as "+m.identity.Username, bannerInfo)
		}
		m.mode = modeEmail
		m.flow = flowSignUp
		m.textinput.Placeholder = "Email"
		return m, nil

	case "/logout":
		m.auth.LogOut()
		m.identity = m.auth.Identity()
		m.showSessions = false
		m.isLoading = false
		m.sessionList.SetItems(nil)
		m.viewport.SetContent(m.renderHistory())
		return m.showBanner("Signed out.", bannerSuccess)

	case "/sessions":
		if !m.identity.Authenticated {
			return m.showBanner("Sign in first: /login", bannerError)
		}
		m.showSessions = true
		return m, m.refreshSessions()

	case "/new":
		if !m.identity.Authenticated {
			return m.showBanner("Sign in first: /login", bannerError)
		}
		m.isLoading = true
		return m, tea.Batch(m.spinner.Tick, m.createSession())

	case "/settings":
		if !m.identity.Authenticated {
			return m.showBanner("Sign in first: /login", bannerError)
		}
		m.mode = modeAPIKey
		m.textinput.Placeholder = "Gemini API key"
		return m, nil

	default:
		return m.showBanner("Unknown command. Try /help", bannerError)
	}
}

func (m chatModel) handleSessionPick() (tea.Model, tea.Cmd) {
	item, ok := m.sessionList.SelectedItem().(sessionItem)
	if !ok {
		return m, nil
	}
	if _, err := m.sessions.Select(item.s.ID); err != nil {
		return m.showBanner("Could not open session.", bannerError)
	}
	return m, m.loadConversation(item.s.ID)
}

// verifySession resumes a previous login at startup. Staying anonymous is
// not an error.
func (m chatModel) verifySession() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout())
		defer cancel()

		id, _ := m.auth.VerifySession(ctx)
		return identityMsg(id)
	}
}

func (m chatModel) logIn(email, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout())
		defer cancel()

		id, err := m.auth.LogIn(ctx, email, password)
		if err != nil {
			return authErrMsg{err: err}
		}
		return identityMsg(id)
	}
}

func (m chatModel) signUp(email, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout())
		defer cancel()

		if err := m.auth.SignUp(ctx, email, password); err != nil {
			return authErrMsg{err: err}
		}
		return signedUpMsg{}
	}
}

func (m chatModel) refreshSessions() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout())
		defer cancel()

		list, err := m.sessions.Refresh(ctx)
		if err != nil {
			return sessionErrMsg{err: err}
		}
		return sessionsMsg(list)
	}
}

func (m chatModel) createSession() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout())
		defer cancel()

		s, err := m.sessions.Create(ctx)
		if err != nil {
			return sessionErrMsg{err: err}
		}
		_ = m.pipeline.LoadConversation(ctx, s.ID)
		return conversationMsg{sessionID: s.ID}
	}
}

func (m chatModel) loadConversation(sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout())
		defer cancel()

		// A failed load shows an empty conversation, never a stale one.
		_ = m.pipeline.LoadConversation(ctx, sessionID)
		return conversationMsg{sessionID: sessionID}
	}
}

func (m chatModel) sendPrompt(prompt string) tea.Cmd {
	return func() tea.Msg {
		// The inference round-trip can outlast a normal request.
		ctx, cancel := context.WithTimeout(context.Background(), 2*m.cfg.Timeout())
		defer cancel()

		if m.pipeline.Active() == "" {
			s, err := m.sessions.Create(ctx)
			if err != nil {
				return sendDoneMsg{err: err}
			}
			_ = m.pipeline.LoadConversation(ctx, s.ID)
		}

		sessionID := m.pipeline.Active()
		err := m.pipeline.Send(ctx, prompt)
		return sendDoneMsg{sessionID: sessionID, err: err}
	}
}
