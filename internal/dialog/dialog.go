// Package dialog holds the conversation handler invoked for message activities.
package dialog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/visionbot/internal/activity"
	"github.com/memohai/visionbot/internal/connector"
)

// DefaultEchoPrefix is prepended to echoed text when no prefix is configured.
const DefaultEchoPrefix = "You sent: "

// Handler continues a conversation with a normalized message activity.
type Handler interface {
	Handle(ctx context.Context, a *activity.Activity) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, a *activity.Activity) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, a *activity.Activity) error {
	return f(ctx, a)
}

// Session is the in-memory dialog state of one conversation.
type Session struct {
	ID             string
	ConversationID string
	Turns          int
	StartedAt      time.Time
}

// SessionFactory creates the session for a conversation seen for the first time.
type SessionFactory func(conversationID string) *Session

// NewSession is the default SessionFactory.
func NewSession(conversationID string) *Session {
	return &Session{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		StartedAt:      time.Now().UTC(),
	}
}

// Sessions keeps one Session per conversation id.
type Sessions struct {
	mu      sync.Mutex
	items   map[string]*Session
	factory SessionFactory
}

// NewSessions creates an empty session table.
func NewSessions(factory SessionFactory) *Sessions {
	if factory == nil {
		factory = NewSession
	}
	return &Sessions{items: map[string]*Session{}, factory: factory}
}

// Turn advances the conversation's session by one turn and returns a snapshot of it.
func (s *Sessions) Turn(conversationID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.items[conversationID]
	if !ok {
		session = s.factory(conversationID)
		s.items[conversationID] = session
	}
	session.Turns++
	return *session
}

// Len returns the number of tracked conversations.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// EchoHandler answers every message with its own text.
type EchoHandler struct {
	sender   connector.Sender
	sessions *Sessions
	prefix   string
	logger   *slog.Logger
}

// NewEchoHandler creates an EchoHandler replying through sender.
func NewEchoHandler(log *slog.Logger, sender connector.Sender, sessions *Sessions, prefix string) *EchoHandler {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		sessions = NewSessions(nil)
	}
	if prefix == "" {
		prefix = DefaultEchoPrefix
	}
	return &EchoHandler{
		sender:   sender,
		sessions: sessions,
		prefix:   prefix,
		logger:   log.With(slog.String("component", "echo_dialog")),
	}
}

// Handle echoes the activity text back to its conversation.
func (h *EchoHandler) Handle(ctx context.Context, a *activity.Activity) error {
	if a == nil {
		return nil
	}
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return nil
	}
	session := h.sessions.Turn(a.Conversation.ID)
	h.logger.Debug("echo turn",
		slog.String("session_id", session.ID),
		slog.String("conversation_id", session.ConversationID),
		slog.Int("turn", session.Turns),
	)
	return h.sender.ReplyToActivity(ctx, a.CreateReply(h.prefix+text))
}
