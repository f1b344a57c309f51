package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	pathSubmitEvent    = "/submit_event"
	pathRecentEvents   = "/api/recent_events"
	pathAgent1Output   = "/api/agent1_output"
	pathAgent2Output   = "/api/agent2_output"
	pathRecentInsights = "/api/recent_insights"
	pathAgentStatus    = "/api/agent_status"
	pathStats          = "/api/stats"
	pathAsk            = "/ask_agent3"
	pathStream         = "/stream"

	maxErrorBody = 4 * 1024
)

// StatusError is returned for non-2xx responses that carry no usable payload.
type StatusError struct {
	Path   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Path, e.Status)
}

// Client talks to the pipeline backend.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit paces outbound requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		// The stream lives as long as its context.
		stream: &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RecentEvents(ctx context.Context) ([]EventRecord, error) {
	var out []EventRecord
	if err := c.getJSON(ctx, pathRecentEvents, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ValidationResults(ctx context.Context) ([]ValidationResult, error) {
	var out []ValidationResult
	if err := c.getJSON(ctx, pathAgent1Output, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RedactionResults(ctx context.Context) ([]RedactionResult, error) {
	var out []RedactionResult
	if err := c.getJSON(ctx, pathAgent2Output, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecentInsights(ctx context.Context) ([]Insight, error) {
	var out []Insight
	if err := c.getJSON(ctx, pathRecentInsights, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AgentStatus(ctx context.Context) (AgentStatus, error) {
	var out AgentStatus
	err := c.getJSON(ctx, pathAgentStatus, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.getJSON(ctx, pathStats, &out)
	return out, err
}

// SubmitEvent posts a new event. A decodable {success:false,error} body is returned as a
// response, whatever its status code; only transport and decode failures are errors.
func (c *Client) SubmitEvent(ctx context.Context, event Event) (SubmitResponse, error) {
	var out SubmitResponse
	status, body, err := c.postJSON(ctx, pathSubmitEvent, event)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		if status < 200 || status >= 300 {
			return out, &StatusError{Path: pathSubmitEvent, Status: status, Detail: compactBody(body)}
		}
		return out, fmt.Errorf("decode %s response: %w", pathSubmitEvent, err)
	}
	if !out.Success && out.Error == "" && (status < 200 || status >= 300) {
		return out, &StatusError{Path: pathSubmitEvent, Status: status}
	}
	return out, nil
}

// Ask sends a question to the insight agent and returns its answer.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	status, body, err := c.postJSON(ctx, pathAsk, askRequest{Question: question})
	if err != nil {
		return "", err
	}
	var out AskResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if status < 200 || status >= 300 {
			return "", &StatusError{Path: pathAsk, Status: status, Detail: compactBody(body)}
		}
		return "", fmt.Errorf("decode %s response: %w", pathAsk, err)
	}
	if out.Error != "" {
		return "", &StatusError{Path: pathAsk, Status: status, Detail: out.Error}
	}
	if status < 200 || status >= 300 {
		return "", &StatusError{Path: pathAsk, Status: status}
	}
	if strings.TrimSpace(out.Answer) == "" {
		return "", errors.New("ask: empty answer")
	}
	return out.Answer, nil
}

// OpenStream opens the server push stream. The caller closes the returned body.
func (c *Client) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathStream, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &StatusError{Path: pathStream, Status: resp.StatusCode, Detail: compactBody(body)}
	}
	return resp.Body, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Path: path, Status: resp.StatusCode, Detail: errorField(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (int, []byte, error) {
	if err := c.wait(ctx); err != nil {
		return 0, nil, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	c.logger.Debug("pipeline request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return resp.StatusCode, body, nil
}

func errorField(body []byte) string {
	var decoded struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error != "" {
		return decoded.Error
	}
	return compactBody(body)
}

func compactBody(body []byte) string {
	return truncate(strings.Join(strings.Fields(string(body)), " "), 160)
}
