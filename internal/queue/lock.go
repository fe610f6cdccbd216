package queue

import "sync"

// scopedLock is the single mutex guarding queue state. open acquires it and
// hands back a releaser that unlocks exactly once, however many times it is
// called, so it can be deferred and also invoked early.
//
// It is not reentrant; the Locked suffix convention takes the place of
// reentrancy. Exported methods call open once, and everything they call with
// the lock held carries a Locked suffix (or takes the lock as a parameter,
// like the wait conditions) and never calls open itself. Calling open from a
// Locked method deadlocks.
type scopedLock struct {
	mu sync.Mutex
}

func (l *scopedLock) open() (release func()) {
	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(l.mu.Unlock)
	}
}
