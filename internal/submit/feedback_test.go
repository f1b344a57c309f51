package submit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackHidesAfterDuration(t *testing.T) {
	var changes atomic.Int32
	fb := NewFeedback(20*time.Millisecond, func() { changes.Add(1) })

	fb.Show(newNotice(NoticeSuccess, "saved"))
	_, ok := fb.Current()
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, visible := fb.Current()
		return !visible
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, changes.Load())
}

func TestFeedbackStaleTimerKeepsNewerNotice(t *testing.T) {
	fb := NewFeedback(time.Hour, nil)
	defer fb.Stop()

	first := newNotice(NoticeError, "Error: first")
	second := newNotice(NoticeSuccess, "second")
	fb.Show(first)
	fb.Show(second)

	// The first notice's timer firing late must not clear the second.
	fb.hide(first.ID)

	shown, ok := fb.Current()
	require.True(t, ok)
	assert.Equal(t, second.ID, shown.ID)

	fb.hide(second.ID)
	_, ok = fb.Current()
	assert.False(t, ok)
}

func TestFeedbackReshowRestartsTimer(t *testing.T) {
	fb := NewFeedback(60*time.Millisecond, nil)
	defer fb.Stop()

	fb.Show(newNotice(NoticeSuccess, "one"))
	time.Sleep(40 * time.Millisecond)
	latest := newNotice(NoticeSuccess, "two")
	fb.Show(latest)
	time.Sleep(40 * time.Millisecond)

	shown, ok := fb.Current()
	require.True(t, ok)
	assert.Equal(t, latest.ID, shown.ID)
}

func TestFeedbackStopCancelsHide(t *testing.T) {
	fb := NewFeedback(10*time.Millisecond, nil)
	fb.Show(newNotice(NoticeSuccess, "kept"))
	fb.Stop()
	time.Sleep(30 * time.Millisecond)

	_, ok := fb.Current()
	assert.True(t, ok)
}
