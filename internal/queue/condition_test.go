package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexq/internal/job"
)

func TestScopedLock_ReleaseIsIdempotent(t *testing.T) {
	var l scopedLock

	release := l.open()
	release()
	release()

	// The lock is usable again and was unlocked exactly once.
	release = l.open()
	defer release()
	assert.False(t, l.mu.TryLock())
}

func TestWaitCond_SignalWakesInArrivalOrder(t *testing.T) {
	var l scopedLock
	var c waitCond

	woken := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			release := l.open()
			defer release()
			if signaled, _ := c.wait(context.Background(), &l, 5*time.Second); signaled {
				woken <- i
			}
		}(i)
		require.Eventually(t, func() bool {
			release := l.open()
			defer release()
			return c.len() == i+1
		}, time.Second, 5*time.Millisecond)
	}

	release := l.open()
	assert.True(t, c.signal())
	release()
	assert.Equal(t, 0, <-woken)

	release = l.open()
	assert.True(t, c.signal())
	assert.False(t, c.signal())
	release()
	assert.Equal(t, 1, <-woken)
}

func TestWaitCond_BroadcastWakesAll(t *testing.T) {
	var l scopedLock
	var c waitCond

	const n = 3
	woken := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			release := l.open()
			defer release()
			if signaled, _ := c.wait(context.Background(), &l, 5*time.Second); signaled {
				woken <- struct{}{}
			}
		}()
	}
	require.Eventually(t, func() bool {
		release := l.open()
		defer release()
		return c.len() == n
	}, time.Second, 5*time.Millisecond)

	release := l.open()
	assert.Equal(t, n, c.broadcast())
	release()

	for i := 0; i < n; i++ {
		select {
		case <-woken:
		case <-time.After(2 * time.Second):
			t.Fatal("waiter not woken by broadcast")
		}
	}
}

func TestWaitCond_TimeoutRemovesWaiter(t *testing.T) {
	var l scopedLock
	var c waitCond

	release := l.open()
	signaled, err := c.wait(context.Background(), &l, 10*time.Millisecond)
	n := c.len()
	release()

	assert.False(t, signaled)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPriorityConds_SignalHighestPicksMostUrgentClass(t *testing.T) {
	var l scopedLock
	r := newPriorityConds()

	woken := make(chan job.Priority, 3)
	for _, p := range []job.Priority{job.Low, job.Highest, job.Default} {
		go func(p job.Priority) {
			release := l.open()
			defer release()
			if err := r.await(context.Background(), &l, p, 5*time.Second); err == nil {
				woken <- p
			}
		}(p)
	}
	require.Eventually(t, func() bool {
		release := l.open()
		defer release()
		return len(r.waiting()) == 3
	}, time.Second, 5*time.Millisecond)

	for _, want := range []job.Priority{job.Highest, job.Default, job.Low} {
		release := l.open()
		require.True(t, r.signalHighest())
		release()
		select {
		case got := <-woken:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("no waiter woken, wanted %s", want)
		}
	}

	release := l.open()
	defer release()
	assert.False(t, r.signalHighest())
	assert.Empty(t, r.conds, "conditions are dropped once unused")
}

func TestPriorityConds_CancelledWaiterIsForgotten(t *testing.T) {
	var l scopedLock
	r := newPriorityConds()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := l.open()
	err := r.await(ctx, &l, job.High, 5*time.Second)
	waiting := r.waiting()
	release()

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, waiting)
}

func TestWaitCond_CancelWinsOverConcurrentSignal(t *testing.T) {
	var l scopedLock
	var c waitCond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		signaled bool
		err      error
	}
	done := make(chan result, 1)
	go func() {
		release := l.open()
		defer release()
		signaled, err := c.wait(ctx, &l, 5*time.Second)
		done <- result{signaled, err}
	}()
	require.Eventually(t, func() bool {
		release := l.open()
		defer release()
		return c.len() == 1
	}, time.Second, 5*time.Millisecond)

	// Cancellation and signal land while the waiter cannot reacquire l.
	release := l.open()
	cancel()
	require.True(t, c.signal())
	release()

	select {
	case got := <-done:
		assert.True(t, got.signaled, "the signal is reported so it can be passed on")
		assert.ErrorIs(t, got.err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not return")
	}
}

func TestPriorityConds_CancelledWaiterHandsSignalOn(t *testing.T) {
	var l scopedLock
	r := newPriorityConds()

	// Given: a High producer that is about to give up and a Low producer
	highCtx, cancelHigh := context.WithCancel(context.Background())
	defer cancelHigh()

	highErr := make(chan error, 1)
	lowWoken := make(chan error, 1)
	go func() {
		release := l.open()
		defer release()
		highErr <- r.await(highCtx, &l, job.High, 5*time.Second)
	}()
	go func() {
		release := l.open()
		defer release()
		lowWoken <- r.await(context.Background(), &l, job.Low, 5*time.Second)
	}()
	require.Eventually(t, func() bool {
		release := l.open()
		defer release()
		w := r.waiting()
		return w[job.High] == 1 && w[job.Low] == 1
	}, time.Second, 5*time.Millisecond)

	// When: the High producer is cancelled in the same critical section that
	// signals it
	release := l.open()
	cancelHigh()
	require.True(t, r.signalHighest())
	release()

	// Then: it reports cancellation and the wake-up reaches the Low producer
	select {
	case err := <-highErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled producer did not return")
	}
	select {
	case err := <-lowWoken:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not passed to the next waiting class")
	}

	release = l.open()
	defer release()
	assert.Empty(t, r.waiting())
	assert.Empty(t, r.conds)
}
