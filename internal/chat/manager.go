package chat

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"careguardian/internal/apperr"
)

// Role of one conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation log, in arrival order.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Generator is the slice of the generative-AI collaborator the manager
// needs.
type Generator interface {
	GenerateConversation(ctx context.Context, persona string, history []Turn) (string, error)
}

// Greeting opens every chat session.
const Greeting = "Hello! I am Guardian Bot, your AI assistant. How can I help you today? ✨"

const apology = "Sorry, I am having trouble connecting. Please try again later."

const persona = "You are Guardian Bot, a friendly and empathetic AI health assistant for a caretaking app. " +
	"Your name is Guardian Bot. Keep your responses concise and helpful. " +
	"Refer to different sections of the app if relevant (Dashboard, Health Status, Emotion Tracker, Analysis, Emergency). " +
	"Here is the conversation so far:"

// Manager owns the assistant's bounded conversational memory for one chat
// session. The display log and the request-history buffer are separate:
// the greeting and the apology turn appear in the display only, so the
// model is never fed synthetic turns it did not produce.
type Manager struct {
	gen          Generator
	historyLimit int
	logger       *zap.Logger

	mu       sync.Mutex
	display  []Turn
	history  []Turn
	inFlight bool
	seq      uint64 // bumped on Reset so stale completions are discarded
}

// NewManager creates a chat session seeded with the greeting.
// historyLimit caps how many turns are sent as context on each call;
// values below 1 disable the bound.
func NewManager(gen Generator, historyLimit int, logger *zap.Logger) *Manager {
	m := &Manager{
		gen:          gen,
		historyLimit: historyLimit,
		logger:       logger,
	}
	m.seed()
	return m
}

func (m *Manager) seed() {
	m.display = []Turn{{Role: RoleAssistant, Text: Greeting}}
	m.history = nil
}

// Send appends the user's turn and requests the assistant's response with
// the accumulated history as context. Empty or whitespace-only input is a
// no-op; while a response is outstanding new sends are rejected.
func (m *Manager) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.Validation("Message is empty.")
	}

	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return "", apperr.ErrBusy
	}
	m.inFlight = true
	seq := m.seq
	m.display = append(m.display, Turn{Role: RoleUser, Text: text})
	m.history = append(m.history, Turn{Role: RoleUser, Text: text})
	m.trimHistory()
	request := append([]Turn(nil), m.history...)
	m.mu.Unlock()

	reply, err := m.gen.GenerateConversation(ctx, persona, request)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq != seq {
		// The session was reset while the call was in flight; the reply
		// belongs to the old conversation and must not touch the new one.
		m.logger.Info("discarding assistant reply for reset session")
		return "", apperr.ErrNoSession
	}
	m.inFlight = false

	if err != nil {
		m.logger.Warn("assistant response failed", zap.Error(err))
		// Display only: the history buffer must not be contaminated with a
		// synthetic error turn.
		m.display = append(m.display, Turn{Role: RoleAssistant, Text: apology})
		return "", err
	}

	m.display = append(m.display, Turn{Role: RoleAssistant, Text: reply})
	m.history = append(m.history, Turn{Role: RoleAssistant, Text: reply})
	m.trimHistory()
	return reply, nil
}

// trimHistory drops the oldest turns beyond the configured bound,
// preserving order. Expects m.mu to be held.
func (m *Manager) trimHistory() {
	if m.historyLimit > 0 && len(m.history) > m.historyLimit {
		m.history = append([]Turn(nil), m.history[len(m.history)-m.historyLimit:]...)
	}
}

// Log returns a copy of the display log in arrival order.
func (m *Manager) Log() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.display))
	copy(out, m.display)
	return out
}

// Reset starts a fresh session and invalidates any in-flight call so its
// late completion is discarded. Conversation memory is never persisted.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seed()
	m.inFlight = false
	m.seq++
}
