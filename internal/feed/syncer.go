package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pipelinewatch/internal/metrics"
	"pipelinewatch/internal/pipeline"
)

// Source fetches full feed snapshots from the backend.
type Source interface {
	RecentEvents(ctx context.Context) ([]pipeline.EventRecord, error)
	ValidationResults(ctx context.Context) ([]pipeline.ValidationResult, error)
	RedactionResults(ctx context.Context) ([]pipeline.RedactionResult, error)
	RecentInsights(ctx context.Context) ([]pipeline.Insight, error)
	AgentStatus(ctx context.Context) (pipeline.AgentStatus, error)
	Stats(ctx context.Context) (pipeline.Stats, error)
}

// Syncer is the single reconciliation point between the producers (poll ticks, push
// messages, post-submit refreshes) and the Store.
type Syncer struct {
	store   *Store
	source  Source
	logger  *zap.Logger
	metrics *metrics.Dashboard
	timeout time.Duration

	base    context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

type SyncerOption func(*Syncer)

func WithLogger(logger *zap.Logger) SyncerOption {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Dashboard) SyncerOption {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithTimeout bounds every individual fetch.
func WithTimeout(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSyncer(store *Store, source Source, opts ...SyncerOption) *Syncer {
	base, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		store:   store,
		source:  source,
		logger:  zap.NewNop(),
		timeout: 10 * time.Second,
		base:    base,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh fetches one feed and commits it if nothing newer was applied meanwhile.
// Fetch failures keep the previous snapshot.
func (s *Syncer) Refresh(ctx context.Context, kind Kind) error {
	if s.store.Closed() {
		return nil
	}
	seq := s.store.Issue(kind)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.fetchAndCommit(ctx, kind, seq)
	if err != nil {
		s.metrics.FeedRefreshed(kind.String(), metrics.OutcomeError)
		s.logger.Warn("feed refresh failed",
			zap.String("feed", kind.String()),
			zap.Uint64("seq", seq),
			zap.Error(err),
		)
		return fmt.Errorf("refresh %s: %w", kind, err)
	}
	switch result {
	case Applied:
		s.metrics.FeedRefreshed(kind.String(), metrics.OutcomeApplied)
	case Stale:
		s.metrics.FeedRefreshed(kind.String(), metrics.OutcomeStale)
		s.logger.Debug("stale feed result discarded",
			zap.String("feed", kind.String()),
			zap.Uint64("seq", seq),
		)
	case Discarded:
		s.metrics.FeedRefreshed(kind.String(), metrics.OutcomeClosed)
	}
	return nil
}

func (s *Syncer) fetchAndCommit(ctx context.Context, kind Kind, seq uint64) (CommitResult, error) {
	switch kind {
	case Events:
		items, err := s.source.RecentEvents(ctx)
		if err != nil {
			return Discarded, err
		}
		for _, item := range items {
			s.warnFlag(kind, item.SessionID, "consent_given", item.ConsentGiven)
			s.warnFlag(kind, item.SessionID, "encrypt_email", item.EncryptEmail)
			s.warnFlag(kind, item.SessionID, "processed_by_agent1", item.ProcessedByAgent1)
		}
		return s.store.CommitEvents(seq, items), nil
	case Validations:
		items, err := s.source.ValidationResults(ctx)
		if err != nil {
			return Discarded, err
		}
		for _, item := range items {
			s.warnEncoded(kind, item.SessionID, "issues", item.Issues)
		}
		return s.store.CommitValidations(seq, items), nil
	case Redactions:
		items, err := s.source.RedactionResults(ctx)
		if err != nil {
			return Discarded, err
		}
		for _, item := range items {
			s.warnEncoded(kind, item.SessionID, "redaction_log", item.RedactionLog)
		}
		return s.store.CommitRedactions(seq, items), nil
	case Insights:
		items, err := s.source.RecentInsights(ctx)
		if err != nil {
			return Discarded, err
		}
		return s.store.CommitInsights(seq, items), nil
	case Status:
		status, err := s.source.AgentStatus(ctx)
		if err != nil {
			return Discarded, err
		}
		return s.store.CommitStatus(seq, status), nil
	case Stats:
		stats, err := s.source.Stats(ctx)
		if err != nil {
			return Discarded, err
		}
		return s.store.CommitStats(seq, stats), nil
	default:
		return Discarded, fmt.Errorf("unknown feed %d", kind)
	}
}

func (s *Syncer) warnEncoded(kind Kind, sessionID, field string, list pipeline.EncodedList) {
	if list.Err == nil {
		return
	}
	s.logger.Warn("undecodable embedded list, treating as empty",
		zap.String("feed", kind.String()),
		zap.String("session_id", sessionID),
		zap.String("field", field),
		zap.Error(list.Err),
	)
}

func (s *Syncer) warnFlag(kind Kind, sessionID, field string, flag pipeline.Flag) {
	if flag.Err == nil {
		return
	}
	s.logger.Warn("undecodable flag, treating as false",
		zap.String("feed", kind.String()),
		zap.String("session_id", sessionID),
		zap.String("field", field),
		zap.Error(flag.Err),
	)
}

// Trigger starts a refresh of kind in the background.
func (s *Syncer) Trigger(kind Kind) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		_ = s.Refresh(s.base, kind)
	}()
}

// TriggerAll starts a background refresh of every feed.
func (s *Syncer) TriggerAll() {
	for _, kind := range Kinds {
		s.Trigger(kind)
	}
}

// ApplyStatus installs a pushed status record. The push is authoritative and newer than
// any status fetch still in flight.
func (s *Syncer) ApplyStatus(status pipeline.AgentStatus) CommitResult {
	seq := s.store.Issue(Status)
	return s.store.CommitStatus(seq, status)
}

// AgentStatus implements push.Handler.
func (s *Syncer) AgentStatus(status pipeline.AgentStatus) {
	s.ApplyStatus(status)
}

// NewInsight implements push.Handler: the message is only a signal, the insight itself
// is fetched.
func (s *Syncer) NewInsight() {
	s.Trigger(Insights)
}

// Close tears the syncer down: in-flight fetches are cancelled and their results
// dropped.
func (s *Syncer) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.store.Close()
	s.cancel()
	s.wg.Wait()
}
