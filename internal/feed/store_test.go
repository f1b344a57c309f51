package feed

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelinewatch/internal/pipeline"
)

func eventsNamed(names ...string) []pipeline.EventRecord {
	out := make([]pipeline.EventRecord, 0, len(names))
	for _, name := range names {
		out = append(out, pipeline.EventRecord{SessionID: name, EventType: "click"})
	}
	return out
}

func TestStoreDistinguishesEmptyFromUnloaded(t *testing.T) {
	store := NewStore()

	before := store.Events()
	assert.False(t, before.Loaded)
	assert.False(t, before.IsEmpty())

	seq := store.Issue(Events)
	require.Equal(t, Applied, store.CommitEvents(seq, nil))

	after := store.Events()
	assert.True(t, after.Loaded)
	assert.True(t, after.IsEmpty())
	assert.NotNil(t, after.Items)
}

func TestStoreDiscardsOlderCompletion(t *testing.T) {
	store := NewStore()
	older := store.Issue(Events)
	newer := store.Issue(Events)

	require.Equal(t, Applied, store.CommitEvents(newer, eventsNamed("new")))
	assert.Equal(t, Stale, store.CommitEvents(older, eventsNamed("old")))

	got := store.Events()
	require.Len(t, got.Items, 1)
	assert.Equal(t, "new", got.Items[0].SessionID)
	assert.Equal(t, newer, got.Seq)
}

func TestStoreRejectsUnissuedSequence(t *testing.T) {
	store := NewStore()
	assert.Equal(t, Stale, store.CommitInsights(7, []pipeline.Insight{{InsightText: "x"}}))
	assert.False(t, store.Insights().Loaded)
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			next := make([]int, 0, n)
			next = append(next, p[:i]...)
			next = append(next, n-1)
			next = append(next, p[i:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestStoreHighestSequenceWinsInAnyCompletionOrder(t *testing.T) {
	const inflight = 4
	for _, order := range permutations(inflight) {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			store := NewStore()
			seqs := make([]uint64, inflight)
			for i := range seqs {
				seqs[i] = store.Issue(Validations)
			}
			for _, idx := range order {
				store.CommitValidations(seqs[idx], []pipeline.ValidationResult{
					{SessionID: fmt.Sprintf("r%d", idx)},
				})
			}
			got := store.Validations()
			require.Len(t, got.Items, 1)
			assert.Equal(t, fmt.Sprintf("r%d", inflight-1), got.Items[0].SessionID)
			assert.Equal(t, seqs[inflight-1], got.Seq)
		})
	}
}

func TestStoreFeedsAreIndependent(t *testing.T) {
	store := NewStore()
	eventSeq := store.Issue(Events)
	insightSeq := store.Issue(Insights)

	assert.Equal(t, uint64(1), eventSeq)
	assert.Equal(t, uint64(1), insightSeq)
	require.Equal(t, Applied, store.CommitInsights(insightSeq, []pipeline.Insight{{InsightText: "ok"}}))
	assert.False(t, store.Events().Loaded)
}

func TestStoreClosedIgnoresCommits(t *testing.T) {
	var changes []Kind
	store := NewStore(WithOnChange(func(k Kind) { changes = append(changes, k) }))
	seq := store.Issue(Status)
	store.Close()

	assert.Equal(t, Discarded, store.CommitStatus(seq, pipeline.AgentStatus{Agent1: "up"}))
	assert.False(t, store.Status().Loaded)
	assert.Empty(t, changes)
}

func TestStoreReadsAreCopies(t *testing.T) {
	store := NewStore()
	seq := store.Issue(Events)
	store.CommitEvents(seq, eventsNamed("a"))

	snapshot := store.Events()
	snapshot.Items[0].SessionID = "mutated"

	assert.Equal(t, "a", store.Events().Items[0].SessionID)
}

func TestStoreOnChangeFiresPerApply(t *testing.T) {
	var changes []Kind
	store := NewStore(WithOnChange(func(k Kind) { changes = append(changes, k) }))

	older := store.Issue(Stats)
	newer := store.Issue(Stats)
	store.CommitStats(newer, pipeline.Stats{TotalEvents: 2})
	store.CommitStats(older, pipeline.Stats{TotalEvents: 1})

	assert.Equal(t, []Kind{Stats}, changes)
	assert.Equal(t, 2, store.Stats().Value.TotalEvents)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "events", Events.String())
	assert.Equal(t, "agent_status", Status.String())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Len(t, Kinds, int(kindCount))
}
