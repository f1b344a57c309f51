// Package push consumes the server push stream and turns its messages into store
// updates.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"pipelinewatch/internal/metrics"
	"pipelinewatch/internal/pipeline"
)

// Handler receives decoded push messages.
type Handler interface {
	// AgentStatus replaces the status record in place.
	AgentStatus(status pipeline.AgentStatus)
	// NewInsight signals that the insight feed changed.
	NewInsight()
}

// Opener opens the push stream.
type Opener interface {
	OpenStream(ctx context.Context) (io.ReadCloser, error)
}

// State is the connection state reported to observers.
type State struct {
	Connected bool
	Info      string
}

var errStreamClosed = errors.New("stream closed by server")

// Channel reads the push stream, dispatches its messages and, if enabled, reconnects
// with a growing delay after the stream ends.
type Channel struct {
	opener     Opener
	handler    Handler
	logger     *zap.Logger
	metrics    *metrics.Dashboard
	onState    func(State)
	reconnect  bool
	backoffMin time.Duration
	backoffMax time.Duration
}

type Option func(*Channel)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Dashboard) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithStateHook registers fn to observe connection changes. fn must not block.
func WithStateHook(fn func(State)) Option {
	return func(c *Channel) {
		c.onState = fn
	}
}

// WithReconnect enables reconnecting with a delay growing from min to max.
func WithReconnect(enabled bool, min, max time.Duration) Option {
	return func(c *Channel) {
		c.reconnect = enabled
		if min > 0 {
			c.backoffMin = min
		}
		if max >= c.backoffMin {
			c.backoffMax = max
		}
	}
}

func NewChannel(opener Opener, handler Handler, opts ...Option) *Channel {
	c := &Channel{
		opener:     opener,
		handler:    handler,
		logger:     zap.NewNop(),
		reconnect:  true,
		backoffMin: time.Second,
		backoffMax: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes the stream until ctx is done, or until the first terminal stream error
// when reconnecting is disabled. Stream failures never propagate: the poll keeps the
// dashboard current while the stream is down.
func (c *Channel) Run(ctx context.Context) {
	backoff := c.backoffMin
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			c.emit(State{Connected: false, Info: "stopped"})
			return
		}
		info := "disconnected"
		if err != nil {
			info = compact(err.Error(), 160)
		}
		c.emit(State{Connected: false, Info: info})
		c.logger.Warn("push stream ended", zap.Error(err), zap.Bool("reconnect", c.reconnect))
		if !c.reconnect {
			return
		}
		if connected {
			backoff = c.backoffMin
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.emit(State{Connected: false, Info: "stopped"})
			return
		case <-timer.C:
		}
		if backoff < c.backoffMax {
			backoff += c.backoffMin / 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
		}
	}
}

func (c *Channel) session(ctx context.Context) (bool, error) {
	body, err := c.opener.OpenStream(ctx)
	if err != nil {
		return false, err
	}
	defer body.Close()

	// Closing the body unblocks the scanner when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	c.emit(State{Connected: true, Info: "connected"})
	if err := readFrames(body, func(data string) { c.Dispatch([]byte(data)) }); err != nil {
		return true, err
	}
	return true, errStreamClosed
}

// Dispatch decodes one push message and routes it. Malformed messages are logged and
// dropped; unknown types are ignored.
func (c *Channel) Dispatch(data []byte) {
	var msg pipeline.StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.metrics.PushMessage("malformed")
		c.logger.Warn("dropping malformed push message", zap.Error(err), zap.String("data", compact(string(data), 160)))
		return
	}

	switch msg.Type {
	case pipeline.MessageAgentStatus:
		var status pipeline.AgentStatus
		if err := decodeStatus(msg.Data, &status); err != nil {
			c.metrics.PushMessage("malformed")
			c.logger.Warn("dropping malformed agent_status payload", zap.Error(err))
			return
		}
		c.metrics.PushMessage(msg.Type)
		c.handler.AgentStatus(status)
	case pipeline.MessageNewInsight:
		c.metrics.PushMessage(msg.Type)
		c.handler.NewInsight()
	default:
		c.metrics.PushMessage("unknown")
		c.logger.Debug("ignoring push message", zap.String("type", msg.Type))
	}
}

func decodeStatus(raw json.RawMessage, out *pipeline.AgentStatus) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(raw, out)
}

func (c *Channel) emit(state State) {
	c.metrics.PushState(state.Connected)
	if c.onState != nil {
		c.onState(state)
	}
}

func compact(text string, limit int) string {
	flat := []rune(strings.Join(strings.Fields(text), " "))
	if len(flat) <= limit {
		return string(flat)
	}
	return string(flat[:limit]) + "..."
}
