// Package submit turns operator form input into a submitted pipeline event.
package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pipelinewatch/internal/digest"
	"pipelinewatch/internal/metrics"
	"pipelinewatch/internal/pipeline"
)

const genericFailure = "Error submitting event. Please try again."

// ErrMissingField reports a blank required form field.
var ErrMissingField = errors.New("missing required field")

// Form is the operator's submission input.
type Form struct {
	SessionID    string
	Email        string
	EventType    string
	PageURL      string
	IPAddress    string
	ConsentGiven bool
	EncryptEmail bool
}

// DefaultForm is the cleared form: every text field empty and consent checked.
func DefaultForm() Form {
	return Form{ConsentGiven: true}
}

// Validate checks the fields the backend cannot store blank.
func (f Form) Validate() error {
	if strings.TrimSpace(f.SessionID) == "" {
		return fmt.Errorf("%w: session_id", ErrMissingField)
	}
	if strings.TrimSpace(f.EventType) == "" {
		return fmt.Errorf("%w: event_type", ErrMissingField)
	}
	return nil
}

type Submitter interface {
	SubmitEvent(ctx context.Context, event pipeline.Event) (pipeline.SubmitResponse, error)
}

// Refresher refreshes every feed after a successful submission.
type Refresher interface {
	TriggerAll()
}

// Outcome is the result of one Submit call. Form is what the form should show next.
type Outcome struct {
	Success bool
	Notice  Notice
	Form    Form
	Event   pipeline.Event
}

type Controller struct {
	submitter Submitter
	refresher Refresher
	feedback  *Feedback
	hash      digest.Func
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Dashboard
}

type Option func(*Controller)

// WithHash replaces the email transform.
func WithHash(fn digest.Func) Option {
	return func(c *Controller) {
		if fn != nil {
			c.hash = fn
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Dashboard) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithFeedback routes every outcome notice to fb.
func WithFeedback(fb *Feedback) Option {
	return func(c *Controller) {
		c.feedback = fb
	}
}

func NewController(submitter Submitter, refresher Refresher, opts ...Option) *Controller {
	c := &Controller{
		submitter: submitter,
		refresher: refresher,
		hash:      digest.Hash,
		timeout:   15 * time.Second,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates the form, hashes the email when asked to, and posts the event. On
// success the form is reset and every feed is refreshed; otherwise the form is kept.
func (c *Controller) Submit(ctx context.Context, form Form) Outcome {
	out := c.submit(ctx, form)
	if out.Success {
		c.metrics.Submission("accepted")
	} else {
		c.metrics.Submission("rejected")
	}
	if c.feedback != nil {
		c.feedback.Show(out.Notice)
	}
	return out
}

func (c *Controller) submit(ctx context.Context, form Form) Outcome {
	failed := func(text string) Outcome {
		return Outcome{Notice: newNotice(NoticeError, text), Form: form}
	}

	if err := form.Validate(); err != nil {
		return failed("Error: " + err.Error())
	}

	event := pipeline.Event{
		SessionID:    strings.TrimSpace(form.SessionID),
		UserEmail:    form.Email,
		EventType:    strings.TrimSpace(form.EventType),
		PageURL:      form.PageURL,
		IPAddress:    form.IPAddress,
		ConsentGiven: form.ConsentGiven,
		EncryptEmail: form.EncryptEmail,
	}
	if form.EncryptEmail {
		hashed, err := digest.Email(form.Email, c.hash)
		if err != nil {
			c.logger.Error("hashing email failed", zap.Error(err))
			return failed("Error: could not hash email: " + err.Error())
		}
		event.UserEmail = hashed
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.submitter.SubmitEvent(ctx, event)
	if err != nil {
		c.logger.Warn("submit event failed", zap.String("session_id", event.SessionID), zap.Error(err))
		out := failed(genericFailure)
		out.Event = event
		return out
	}
	if !resp.Success {
		c.logger.Info("submit event rejected", zap.String("session_id", event.SessionID), zap.String("error", resp.Error))
		out := failed("Error: " + resp.Error)
		out.Event = event
		return out
	}

	c.logger.Info("event submitted", zap.String("session_id", event.SessionID), zap.Int64("event_id", resp.EventID))
	if c.refresher != nil {
		c.refresher.TriggerAll()
	}
	text := resp.Message
	if text == "" {
		text = "Event submitted successfully"
	}
	return Outcome{
		Success: true,
		Notice:  newNotice(NoticeSuccess, text),
		Form:    DefaultForm(),
		Event:   event,
	}
}
