package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	n atomic.Int32
}

func (c *countingRefresher) TriggerAll() {
	c.n.Add(1)
}

func TestSchedulerFiresOnCadence(t *testing.T) {
	ref := &countingRefresher{}
	sched := New(10*time.Millisecond, ref)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ref.n.Load() >= 3 }, time.Second, 2*time.Millisecond)
	cancel()
	<-done

	stopped := ref.n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, ref.n.Load(), "no ticks after stop")
}

func TestSchedulerImmediateFire(t *testing.T) {
	ref := &countingRefresher{}
	sched := New(time.Hour, ref, Immediately())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ref.n.Load() == 1 }, time.Second, 2*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int32(1), ref.n.Load())
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	assert.Equal(t, 5*time.Second, New(0, &countingRefresher{}).interval)
}
