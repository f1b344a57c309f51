// Package feed keeps the latest snapshot of every dashboard feed and reconciles the
// producers that refresh them.
package feed

import (
	"slices"
	"sync"
	"time"

	"pipelinewatch/internal/pipeline"
)

// Kind names one independently refreshed feed.
type Kind int

const (
	Events Kind = iota
	Validations
	Redactions
	Insights
	Status
	Stats
	kindCount
)

// Kinds lists every feed in refresh order.
var Kinds = []Kind{Events, Validations, Redactions, Insights, Status, Stats}

func (k Kind) String() string {
	switch k {
	case Events:
		return "events"
	case Validations:
		return "validations"
	case Redactions:
		return "redactions"
	case Insights:
		return "insights"
	case Status:
		return "agent_status"
	case Stats:
		return "stats"
	default:
		return "unknown"
	}
}

// List is a read snapshot of a list feed. Loaded is false until the first successful
// fetch, so an empty feed and a feed that was never fetched stay distinguishable.
type List[T any] struct {
	Items     []T
	Seq       uint64
	Loaded    bool
	FetchedAt time.Time
}

// IsEmpty reports a loaded snapshot with no items.
func (l List[T]) IsEmpty() bool {
	return l.Loaded && len(l.Items) == 0
}

// Record is a read snapshot of a single-record feed.
type Record[T any] struct {
	Value     T
	Seq       uint64
	Loaded    bool
	FetchedAt time.Time
}

type slot[T any] struct {
	value   T
	applied uint64
	loaded  bool
	at      time.Time
}

// Store holds the last successfully fetched snapshot of every feed. Every refresh is
// tagged with a per-feed sequence number from Issue; a result older than the snapshot
// already applied for its feed is discarded.
type Store struct {
	mu     sync.RWMutex
	closed bool
	issued [kindCount]uint64

	events      slot[[]pipeline.EventRecord]
	validations slot[[]pipeline.ValidationResult]
	redactions  slot[[]pipeline.RedactionResult]
	insights    slot[[]pipeline.Insight]
	status      slot[pipeline.AgentStatus]
	stats       slot[pipeline.Stats]

	onChange func(Kind)
	now      func() time.Time
}

type StoreOption func(*Store)

// WithOnChange registers a hook called, outside the lock, after a snapshot is replaced.
func WithOnChange(fn func(Kind)) StoreOption {
	return func(s *Store) {
		s.onChange = fn
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue returns the next sequence number for kind.
func (s *Store) Issue(kind Kind) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[kind]++
	return s.issued[kind]
}

// Close marks the store torn down. Later commits are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// CommitResult reports what happened to a commit.
type CommitResult int

const (
	Applied CommitResult = iota
	Stale
	Discarded
)

func commit[T any](s *Store, kind Kind, dst *slot[T], seq uint64, value T) CommitResult {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return Discarded
	case seq <= dst.applied || seq > s.issued[kind]:
		s.mu.Unlock()
		return Stale
	}
	dst.value = value
	dst.applied = seq
	dst.loaded = true
	dst.at = s.now()
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(kind)
	}
	return Applied
}

func (s *Store) CommitEvents(seq uint64, items []pipeline.EventRecord) CommitResult {
	return commit(s, Events, &s.events, seq, nonNil(items))
}

func (s *Store) CommitValidations(seq uint64, items []pipeline.ValidationResult) CommitResult {
	return commit(s, Validations, &s.validations, seq, nonNil(items))
}

func (s *Store) CommitRedactions(seq uint64, items []pipeline.RedactionResult) CommitResult {
	return commit(s, Redactions, &s.redactions, seq, nonNil(items))
}

func (s *Store) CommitInsights(seq uint64, items []pipeline.Insight) CommitResult {
	return commit(s, Insights, &s.insights, seq, nonNil(items))
}

func (s *Store) CommitStatus(seq uint64, status pipeline.AgentStatus) CommitResult {
	return commit(s, Status, &s.status, seq, status)
}

func (s *Store) CommitStats(seq uint64, stats pipeline.Stats) CommitResult {
	return commit(s, Stats, &s.stats, seq, stats)
}

func readList[T any](s *Store, src *slot[[]T]) List[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return List[T]{
		Items:     slices.Clone(src.value),
		Seq:       src.applied,
		Loaded:    src.loaded,
		FetchedAt: src.at,
	}
}

func readRecord[T any](s *Store, src *slot[T]) Record[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Record[T]{
		Value:     src.value,
		Seq:       src.applied,
		Loaded:    src.loaded,
		FetchedAt: src.at,
	}
}

func (s *Store) Events() List[pipeline.EventRecord] {
	return readList(s, &s.events)
}

func (s *Store) Validations() List[pipeline.ValidationResult] {
	return readList(s, &s.validations)
}

func (s *Store) Redactions() List[pipeline.RedactionResult] {
	return readList(s, &s.redactions)
}

func (s *Store) Insights() List[pipeline.Insight] {
	return readList(s, &s.insights)
}

func (s *Store) Status() Record[pipeline.AgentStatus] {
	return readRecord(s, &s.status)
}

func (s *Store) Stats() Record[pipeline.Stats] {
	return readRecord(s, &s.stats)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
