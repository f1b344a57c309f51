// Package chat runs question/answer turns with the insight agent, one turn at a time.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pipelinewatch/internal/metrics"
)

type Sender string

const (
	User  Sender = "user"
	Agent Sender = "agent"
)

const (
	PlaceholderText = "Thinking..."
	ApologyText     = "Sorry, I encountered an error. Please try again."
)

var (
	ErrEmptyQuestion = errors.New("chat: empty question")
	ErrTurnPending   = errors.New("chat: a question is already pending")
	ErrTurnResolved  = errors.New("chat: turn already resolved")
)

// Message is one chat entry. ID is a handle unique within the process.
type Message struct {
	ID          uuid.UUID
	Sender      Sender
	Text        string
	Placeholder bool
	At          time.Time
}

// Asker sends a question to the insight agent.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Turn is an accepted question awaiting its answer.
type Turn struct {
	Question    string
	placeholder uuid.UUID
	claimed     bool
}

// Session holds the chat history and allows at most one pending question.
type Session struct {
	mu       sync.Mutex
	messages []Message
	pending  *Turn

	asker    Asker
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Dashboard
	onChange func()
	now      func() time.Time
}

type Option func(*Session)

func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Dashboard) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithOnChange registers a hook called, outside the lock, after every mutation.
func WithOnChange(fn func()) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

func NewSession(asker Asker, opts ...Option) *Session {
	s := &Session{
		asker:   asker,
		timeout: 60 * time.Second,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin accepts a question: it appends the user message and a placeholder agent message
// and marks the session pending. Blank questions and questions asked while another is
// pending are rejected without changing anything.
func (s *Session) Begin(question string) (*Turn, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrTurnPending
	}
	now := s.now()
	turn := &Turn{Question: q, placeholder: uuid.New()}
	s.messages = append(s.messages,
		Message{ID: uuid.New(), Sender: User, Text: q, At: now},
		Message{ID: turn.placeholder, Sender: Agent, Text: PlaceholderText, Placeholder: true, At: now},
	)
	s.pending = turn
	s.mu.Unlock()

	s.changed()
	return turn, nil
}

// Resolve sends the turn's question and replaces its placeholder with the answer, or
// with an apology if the call fails. The placeholder is removed exactly once.
func (s *Session) Resolve(ctx context.Context, turn *Turn) (Message, error) {
	s.mu.Lock()
	if turn == nil || s.pending != turn || turn.claimed {
		s.mu.Unlock()
		return Message{}, ErrTurnResolved
	}
	turn.claimed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	answer, err := s.asker.Ask(ctx, turn.Question)
	cancel()

	text := answer
	outcome := "answered"
	if err != nil {
		s.logger.Warn("chat turn failed", zap.String("question", turn.Question), zap.Error(err))
		text = ApologyText
		outcome = "error"
	}
	s.metrics.ChatTurn(outcome)

	s.mu.Lock()
	s.removeLocked(turn.placeholder)
	reply := Message{ID: uuid.New(), Sender: Agent, Text: text, At: s.now()}
	s.messages = append(s.messages, reply)
	s.pending = nil
	s.mu.Unlock()

	s.changed()
	return reply, err
}

// Ask is Begin followed by Resolve.
func (s *Session) Ask(ctx context.Context, question string) (Message, error) {
	turn, err := s.Begin(question)
	if err != nil {
		return Message{}, err
	}
	return s.Resolve(ctx, turn)
}

func (s *Session) removeLocked(id uuid.UUID) {
	for i, msg := range s.messages {
		if msg.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Session) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
