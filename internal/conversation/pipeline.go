// Package conversation owns the visible message list and the send pipeline.
// The backend transcript is authoritative: the local list is an optimistic
// view that the next LoadConversation fully replaces.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moviechat/internal/api"
	"moviechat/internal/auth"
	"moviechat/internal/logging"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// State is a message's delivery state.
type State int

const (
	// StateComplete is settled content, either typed by the user or
	// returned by the backend.
	StateComplete State = iota
	// StatePending marks the assistant placeholder while a send is in
	// flight.
	StatePending
)

// Message is one entry in the visible conversation. IDs are assigned from a
// single monotonic counter, so they are unique across user and assistant
// messages and across session switches.
type Message struct {
	ID     uint64
	Sender Sender
	Text   string
	State  State
}

var (
	// ErrUnauthorized is returned when the caller's identity may not
	// chat: anonymous, deactivated, or email not verified. Checked
	// before any network I/O.
	ErrUnauthorized = errors.New("identity not authorized to chat")
	// ErrNoSession is returned by Send when no session is active.
	ErrNoSession = errors.New("no active session")
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("empty message")
	// ErrSendInFlight is returned by Send while a previous send for the
	// same session is still waiting on the backend.
	ErrSendInFlight = errors.New("send already in flight")
)

// IdentitySource supplies the caller's identity and bearer token.
// Satisfied by *auth.Store.
type IdentitySource interface {
	Identity() auth.Identity
	Token() (string, error)
}

// Archiver receives settled turns for local archival. It must not block and
// never influences the visible list.
type Archiver interface {
	Record(sessionID string, sender, text string)
}

// Pipeline is the ChatPipeline. One Pipeline shows one conversation at a
// time; switching sessions goes through LoadConversation.
type Pipeline struct {
	api     *api.Client
	ids     IdentitySource
	archive Archiver
	log     *zap.Logger

	mu        sync.RWMutex
	messages  []Message
	active    string
	inFlight  map[string]bool // session ids with a pending send
	nextID    uint64
	loadEpoch uint64
}

// NewPipeline wires the pipeline. archive may be nil.
func NewPipeline(client *api.Client, ids IdentitySource, archive Archiver) *Pipeline {
	return &Pipeline{
		api:      client,
		ids:      ids,
		archive:  archive,
		inFlight: make(map[string]bool),
		log:      logging.Get(logging.CategoryPipeline),
	}
}

// Messages returns a snapshot of the visible conversation.
func (p *Pipeline) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Active returns the session the pipeline is currently showing.
func (p *Pipeline) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// InFlight reports whether a send for the given session is waiting on the
// backend.
func (p *Pipeline) InFlight(sessionID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inFlight[sessionID]
}

// Send submits the prompt for the active session. The user message and a
// pending assistant placeholder appear immediately; the placeholder settles
// when the backend answers. If the user switches sessions before the answer
// arrives, the completion is dropped rather than applied to the wrong
// conversation.
//
// Send blocks for the round-trip and is meant to run on its own goroutine.
func (p *Pipeline) Send(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyMessage
	}

	if !p.ids.Identity().CanChat() {
		return ErrUnauthorized
	}
	token, err := p.ids.Token()
	if err != nil {
		return ErrUnauthorized
	}

	p.mu.Lock()
	sessionID := p.active
	if sessionID == "" {
		p.mu.Unlock()
		return ErrNoSession
	}
	if p.inFlight[sessionID] {
		p.mu.Unlock()
		return ErrSendInFlight
	}
	p.inFlight[sessionID] = true
	p.appendLocked(Message{Sender: SenderUser, Text: prompt, State: StateComplete})
	placeholderID := p.appendLocked(Message{Sender: SenderAssistant, State: StatePending})
	p.mu.Unlock()

	// Released on every exit path, panics included.
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, sessionID)
		p.mu.Unlock()
	}()

	corr := uuid.NewString()
	p.log.Debug("send started",
		zap.String("correlation_id", corr),
		zap.String("session_id", sessionID))

	if p.archive != nil {
		p.archive.Record(sessionID, string(SenderUser), prompt)
	}

	answer, err := p.api.Process(ctx, token, sessionID, prompt)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != sessionID {
		// Stale completion: the user moved on while we were waiting.
		p.log.Debug("dropping stale completion",
			zap.String("correlation_id", corr),
			zap.String("session_id", sessionID),
			zap.String("active", p.active))
		return err
	}

	if err != nil {
		// The user message stays; the placeholder quietly disappears.
		p.removeLocked(placeholderID)
		p.log.Warn("send failed", zap.String("correlation_id", corr), zap.Error(err))
		return err
	}

	p.settleLocked(placeholderID, StateComplete, answer)
	if p.archive != nil {
		p.archive.Record(sessionID, string(SenderAssistant), answer)
	}
	p.log.Debug("send complete", zap.String("correlation_id", corr))
	return nil
}

// LoadConversation switches the pipeline to sessionID and replaces the
// visible list with the backend transcript. On failure the list is cleared
// so a stale conversation is never shown under the new session. A load that
// finishes after another load or a Clear superseded it is dropped.
func (p *Pipeline) LoadConversation(ctx context.Context, sessionID string) error {
	if !p.ids.Identity().CanChat() {
		return ErrUnauthorized
	}
	token, err := p.ids.Token()
	if err != nil {
		return ErrUnauthorized
	}

	p.mu.Lock()
	p.active = sessionID
	p.messages = nil
	p.loadEpoch++
	epoch := p.loadEpoch
	p.mu.Unlock()

	entries, err := p.api.Conversation(ctx, token, sessionID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadEpoch != epoch || p.active != sessionID {
		return err
	}

	if err != nil {
		p.messages = nil
		p.log.Warn("conversation load failed", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}

	p.messages = make([]Message, 0, len(entries))
	for _, e := range entries {
		sender := SenderAssistant
		if e.Sender == string(SenderUser) {
			sender = SenderUser
		}
		p.appendLocked(Message{Sender: sender, Text: e.Message, State: StateComplete})
	}
	p.log.Debug("conversation loaded",
		zap.String("session_id", sessionID),
		zap.Int("messages", len(entries)))
	return nil
}

// Clear empties the conversation and forgets the active session. Registered
// as an AuthStore logout hook. Any in-flight completion becomes stale.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	p.messages = nil
	p.active = ""
	p.loadEpoch++
	p.mu.Unlock()
	p.log.Debug("pipeline cleared")
}

// appendLocked assigns the next id and appends. Caller holds p.mu.
func (p *Pipeline) appendLocked(m Message) uint64 {
	p.nextID++
	m.ID = p.nextID
	p.messages = append(p.messages, m)
	return m.ID
}

// settleLocked resolves the pending placeholder. Caller holds p.mu.
func (p *Pipeline) settleLocked(id uint64, state State, text string) {
	for i := range p.messages {
		if p.messages[i].ID == id {
			p.messages[i].State = state
			p.messages[i].Text = text
			return
		}
	}
}

// removeLocked drops the message with the given id. Caller holds p.mu.
func (p *Pipeline) removeLocked(id uint64) {
	for i := range p.messages {
		if p.messages[i].ID == id {
			p.messages = append(p.messages[:i], p.messages[i+1:]...)
			return
		}
	}
}
