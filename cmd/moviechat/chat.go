// Package main provides the moviechat CLI entry point.
// This file implements the interactive chat interface using bubbletea.
package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"moviechat/cmd/moviechat/ui"
	"moviechat/internal/auth"
	"moviechat/internal/config"
	"moviechat/internal/conversation"
	"moviechat/internal/session"
	"moviechat/internal/settings"
	"moviechat/internal/store"
)

// bannerTTL is how long a transient banner stays on screen.
const bannerTTL = 3500 * time.Millisecond

// inputMode determines what the text input is collecting.
type inputMode int

const (
	modeChat inputMode = iota
	modeEmail
	modePassword
	modeAPIKey
)

// authFlow distinguishes the two credential prompts.
type authFlow int

const (
	flowNone authFlow = iota
	flowLogIn
	flowSignUp
)

type bannerKind int

const (
	bannerInfo bannerKind = iota
	bannerSuccess
	bannerError
)

// Messages for tea updates
type (
	identityMsg      auth.Identity
	authErrMsg       struct{ err error }
	sessionsMsg      []session.Session
	sessionErrMsg    struct{ err error }
	conversationMsg  struct{ sessionID string }
	bannerExpiredMsg struct{ seq int }
)

type sendDoneMsg struct {
	sessionID string
	err       error
}

type signedUpMsg struct{}

// sessionItem adapts a session for the bubbles list sidebar.
type sessionItem struct{ s session.Session }

func (i sessionItem) Title() string { return i.s.Title }
func (i sessionItem) Description() string {
	if i.s.StartedAt.IsZero() {
		return i.s.ID
	}
	return i.s.StartedAt.Format("Jan 2 15:04")
}
func (i sessionItem) FilterValue() string { return i.s.Title }

// chatModel is the main model for the interactive chat interface.
type chatModel struct {
	// UI components
	textinput   textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	sessionList list.Model
	styles      ui.Styles
	renderer    *glamour.TermRenderer

	// State
	identity     auth.Identity
	mode         inputMode
	flow         authFlow
	pendingEmail string
	isLoading    bool
	showSessions bool
	showHelp     bool
	banner       string
	bannerKind   bannerKind
	bannerSeq    int
	inputHistory []string
	historyIdx   int
	err          error
	width        int
	height       int
	ready        bool

	// Stores
	cfg      config.Config
	auth     *auth.Store
	sessions *session.Registry
	pipeline *conversation.Pipeline
	prefs    *settings.Store
	archive  *store.LocalStore
}

// initChat wires the chat model from the injected stores.
func initChat(cfg config.Config, authStore *auth.Store, registry *session.Registry, pipeline *conversation.Pipeline, prefs *settings.Store, archive *store.LocalStore) chatModel {
	styles := ui.NewStyles(ui.ThemeByName(cfg.Theme))

	ti := textinput.New()
	ti.Placeholder = "Ask for a movie... (Enter to send, /help for commands)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 2048
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.Body

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(styles.Theme.Accent).BorderForeground(styles.Theme.Accent)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(styles.Theme.Muted).BorderForeground(styles.Theme.Accent)
	sl := list.New(nil, delegate, 30, 20)
	sl.Title = "Sessions"
	sl.SetShowStatusBar(false)
	sl.SetFilteringEnabled(false)
	sl.SetShowHelp(false)

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	history := []string{}
	if archive != nil {
		if recent, err := archive.RecentInputs(50); err == nil {
			history = recent
		}
	}

	return chatModel{
		textinput:    ti,
		viewport:     vp,
		spinner:      sp,
		sessionList:  sl,
		styles:       styles,
		renderer:     renderer,
		identity:     authStore.Identity(),
		historyIdx:   -1,
		inputHistory: history,
		cfg:          cfg,
		auth:         authStore,
		sessions:     registry,
		pipeline:     pipeline,
		prefs:        prefs,
		archive:      archive,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.verifySession(),
	)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
		slCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit

		case tea.KeyEsc:
			if m.showSessions {
				m.showSessions = false
				return m, nil
			}
			if m.mode != modeChat {
				return m.resetInputMode(), nil
			}
			return m, tea.Quit

		case tea.KeyEnter:
			if m.showSessions {
				return m.handleSessionPick()
			}
			if m.isLoading && m.mode == modeChat {
				return m.showBanner("Still waiting for the previous answer...", bannerInfo)
			}
			return m.handleSubmit()

		case tea.KeyUp, tea.KeyDown:
			if m.showSessions {
				m.sessionList, slCmd = m.sessionList.Update(msg)
				return m, slCmd
			}
			if m.mode == modeChat {
				return m.recallHistory(msg.Type == tea.KeyUp), nil
			}
		}

		if m.showSessions {
			m.sessionList, slCmd = m.sessionList.Update(msg)
			return m, slCmd
		}
		m.textinput, tiCmd = m.textinput.Update(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4
		m.sessionList.SetSize(msg.Width/3, msg.Height-headerHeight-footerHeight-inputHeight)

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}
		m.viewport.SetContent(m.renderHistory())

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			// Keep the pending placeholder fresh while waiting.
			m.viewport.SetContent(m.renderHistory())
			return m, spCmd
		}

	case identityMsg:
		m.isLoading = false
		m.identity = auth.Identity(msg)
		m.viewport.SetContent(m.renderHistory())
		if m.identity.Authenticated {
			// Edge-triggered: fetch the session list once per login edge.
			model, bannerCmd := m.showBanner("Signed in as "+m.identity.Username, bannerSuccess)
			next := model.(chatModel)
			return next, tea.Batch(bannerCmd, next.refreshSessions())
		}

	case authErrMsg:
		m.isLoading = false
		m.identity = m.auth.Identity()
		return m.showBanner("Authentication failed: "+msg.err.Error(), bannerError)

	case signedUpMsg:
		m.isLoading = false
		return m.showBanner("Account created. Use /login to sign in.", bannerSuccess)

	case sessionsMsg:
		items := make([]list.Item, len(msg))
		for i, s := range msg {
			items[i] = sessionItem{s: s}
		}
		m.sessionList.SetItems(items)

	case sessionErrMsg:
		return m.showBanner("Could not load sessions: "+msg.err.Error(), bannerError)

	case conversationMsg:
		m.showSessions = false
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case sendDoneMsg:
		// Reset even for a stale session, or the spinner never stops.
		m.isLoading = false
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		if msg.err != nil {
			return m.showBanner("Message failed to send.", bannerError)
		}
		// A first answer may have given the session a real title.
		return m, m.refreshSessions()

	case bannerExpiredMsg:
		if msg.seq == m.bannerSeq {
			m.banner = ""
		}

	case error:
		m.err = msg
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

// showBanner displays a transient banner that auto-dismisses.
func (m chatModel) showBanner(text string, kind bannerKind) (tea.Model, tea.Cmd) {
	m.banner = text
	m.bannerKind = kind
	m.bannerSeq++
	seq := m.bannerSeq
	return m, tea.Tick(bannerTTL, func(time.Time) tea.Msg {
		return bannerExpiredMsg{seq: seq}
	})
}

// recallHistory cycles through past inputs with the arrow keys.
func (m chatModel) recallHistory(up bool) chatModel {
	if len(m.inputHistory) == 0 {
		return m
	}
	if up {
		if m.historyIdx < len(m.inputHistory)-1 {
			m.historyIdx++
		}
	} else {
		if m.historyIdx < 0 {
			return m
		}
		m.historyIdx--
	}
	if m.historyIdx < 0 {
		m.textinput.SetValue("")
		return m
	}
	m.textinput.SetValue(m.inputHistory[m.historyIdx])
	m.textinput.CursorEnd()
	return m
}

func (m chatModel) resetInputMode() chatModel {
	m.mode = modeChat
	m.flow = flowNone
	m.pendingEmail = ""
	m.textinput.EchoMode = textinput.EchoNormal
	m.textinput.Placeholder = "Ask for a movie... (Enter to send, /help for commands)"
	m.textinput.Reset()
	return m
}

func (m chatModel) renderHistory() string {
	if m.showHelp {
		return m.safeRenderMarkdown(helpText)
	}

	msgs := m.pipeline.Messages()
	if len(msgs) == 0 {
		if !m.identity.Authenticated {
			return m.styles.Muted.Render("Not signed in. Use /login or /signup to get started.")
		}
		return m.styles.Muted.Render("No messages yet. Ask for a movie recommendation!")
	}

	var sb strings.Builder
	for _, msg := range msgs {
		switch {
		case msg.Sender == conversation.SenderUser:
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			sb.WriteString(userStyle.Render("You") + "\n")
			sb.WriteString(m.styles.UserMessage.Render(msg.Text))
			sb.WriteString("\n\n")

		case msg.State == conversation.StatePending:
			sb.WriteString(m.styles.PendingPlaceholder.Render(m.spinner.View() + " Thinking..."))
			sb.WriteString("\n")

		default:
			assistantStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(assistantStyle.Render("🎬 moviechat") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Text))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery.
func (m chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			// If glamour panics, fall back to plain text.
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()

	chatView := m.styles.Content.Render(m.viewport.View())
	if m.showSessions {
		chatView = lipgloss.JoinHorizontal(
			lipgloss.Top,
			m.styles.Sidebar.Render(m.sessionList.View()),
			chatView,
		)
	}

	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		m.renderFooter(),
	)
}

func (m chatModel) renderHeader() string {
	title := m.styles.Header.Render(" 🎬 moviechat ")

	var who string
	if m.identity.Authenticated {
		who = m.styles.Success.Render("● " + m.identity.Username)
		if m.identity.Admin {
			who += " " + m.styles.Badge.Render("admin")
		}
	} else {
		who = m.styles.Muted.Render("● signed out")
	}

	var sessionTag string
	if t := m.sessions.ActiveTitle(); t != "" {
		sessionTag = m.styles.Subtitle.Render("  " + t)
	}

	headerLine := lipgloss.JoinHorizontal(
		lipgloss.Center,
		title,
		"  ",
		who,
		sessionTag,
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		headerLine,
		m.styles.RenderDivider(m.width),
	)
}

func (m chatModel) renderFooter() string {
	if m.banner != "" {
		style := m.styles.Info
		switch m.bannerKind {
		case bannerSuccess:
			style = m.styles.Success
		case bannerError:
			style = m.styles.Error
		}
		return lipgloss.NewStyle().MarginTop(1).Render(style.Render(m.banner))
	}

	help := m.styles.Muted.Render("Enter: send • /sessions: browse • /new: new chat • /help: commands • Ctrl+C: exit")
	return lipgloss.NewStyle().MarginTop(1).Render(help)
}

// runInteractiveChat starts the interactive chat interface.
func runInteractiveChat(cfg config.Config, authStore *auth.Store, registry *session.Registry, pipeline *conversation.Pipeline, prefs *settings.Store, archive *store.LocalStore) error {
	p := tea.NewProgram(
		initChat(cfg, authStore, registry, pipeline, prefs, archive),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
