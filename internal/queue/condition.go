package queue

import (
	"context"
	"time"

	"github.com/Aman-CERP/indexq/internal/job"
)

// waitCond is a condition variable bound to a scopedLock that, unlike
// sync.Cond, can be abandoned on context cancellation or timeout.
//
// Waiters are woken in arrival order. Each waiter owns a buffered channel, so
// a signal delivered while the waiter is racing a cancellation is never lost:
// the waiter observes it after reacquiring the lock.
type waitCond struct {
	waiters []chan struct{}
}

// wait releases l, blocks until signaled, ctx is done or maxWait elapses, and
// reacquires l before returning. l must be held by the caller.
//
// signaled reports whether a signal was consumed. A ctx that is done by the
// time l is reacquired always yields its error, even when a signal was
// consumed; the caller then decides whether to pass the signal on.
func (c *waitCond) wait(ctx context.Context, l *scopedLock, maxWait time.Duration) (signaled bool, err error) {
	ch := make(chan struct{}, 1)
	c.waiters = append(c.waiters, ch)

	l.mu.Unlock()
	timer := time.NewTimer(maxWait)
	select {
	case <-ch:
		signaled = true
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
	l.mu.Lock()

	if !signaled {
		// A signal sent after we stopped selecting is already buffered,
		// since signal removes the waiter and sends under the lock.
		select {
		case <-ch:
			signaled = true
		default:
			c.removeWaiter(ch)
		}
	}
	return signaled, ctx.Err()
}

// signal wakes the longest waiting goroutine, if any. l must be held.
func (c *waitCond) signal() bool {
	if len(c.waiters) == 0 {
		return false
	}
	ch := c.waiters[0]
	c.waiters[0] = nil
	c.waiters = c.waiters[1:]
	ch <- struct{}{}
	return true
}

// broadcast wakes every waiter. l must be held.
func (c *waitCond) broadcast() int {
	n := len(c.waiters)
	for _, ch := range c.waiters {
		ch <- struct{}{}
	}
	c.waiters = nil
	return n
}

func (c *waitCond) len() int {
	return len(c.waiters)
}

func (c *waitCond) removeWaiter(ch chan struct{}) {
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// priorityConds keeps one waitCond per priority that currently has blocked
// producers. Conditions are created on first use and dropped as soon as
// nobody waits on them.
type priorityConds struct {
	conds map[job.Priority]*waitCond
}

func newPriorityConds() priorityConds {
	return priorityConds{conds: make(map[job.Priority]*waitCond)}
}

// await blocks on the condition for p. l must be held.
func (r *priorityConds) await(ctx context.Context, l *scopedLock, p job.Priority, maxWait time.Duration) error {
	c, ok := r.conds[p]
	if !ok {
		c = &waitCond{}
		r.conds[p] = c
	}

	signaled, err := c.wait(ctx, l, maxWait)

	if c.len() == 0 && r.conds[p] == c {
		delete(r.conds, p)
	}
	if err != nil && signaled {
		// We were chosen to use freed capacity but are leaving; hand the
		// wake-up to the next most urgent producer.
		r.signalHighest()
	}
	return err
}

// signalHighest wakes one producer of the highest priority class that has
// waiters. l must be held.
func (r *priorityConds) signalHighest() bool {
	var (
		best  *waitCond
		bestP job.Priority
		found bool
	)
	for p, c := range r.conds {
		if c.len() == 0 {
			continue
		}
		if !found || p > bestP {
			best, bestP, found = c, p, true
		}
	}
	if !found {
		return false
	}
	best.signal()
	if best.len() == 0 {
		delete(r.conds, bestP)
	}
	return true
}

// waiting returns the number of blocked producers per priority.
func (r *priorityConds) waiting() map[job.Priority]int {
	out := make(map[job.Priority]int, len(r.conds))
	for p, c := range r.conds {
		if n := c.len(); n > 0 {
			out[p] = n
		}
	}
	return out
}
