// Package poll drives the timer-based refresh that keeps the dashboard eventually
// consistent when the push stream is silent.
package poll

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher starts a refresh of every feed without waiting for it.
type Refresher interface {
	TriggerAll()
}

// Scheduler fires a full refresh on a fixed cadence, independent of push health.
type Scheduler struct {
	interval  time.Duration
	refresher Refresher
	logger    *zap.Logger
	immediate bool
}

type Option func(*Scheduler)

// Immediately fires once when Run starts, before the first tick.
func Immediately() Option {
	return func(s *Scheduler) {
		s.immediate = true
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(interval time.Duration, refresher Refresher, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Scheduler{
		interval:  interval,
		refresher: refresher,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("poll scheduler started", zap.Duration("interval", s.interval))
	if s.immediate {
		s.refresher.TriggerAll()
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poll scheduler stopped")
			return
		case <-ticker.C:
			s.refresher.TriggerAll()
		}
	}
}
