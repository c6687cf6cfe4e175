package runtime

import (
	"sync"
	"time"
)

// Limiter is a resizable counting semaphore. Acquire blocks up to the
// timeout and reports success as a bool; SetMax wakes every waiter so it
// can re-check against the new capacity. A max of zero (or below) makes
// all acquires fail.
type Limiter struct {
	mu    sync.Mutex
	max   int
	inUse int
	wake  chan struct{}
}

type LimiterSnapshot struct {
	Max   int `json:"max"`
	InUse int `json:"in_use"`
}

func NewLimiter(max int) *Limiter {
	return &Limiter{max: max, wake: make(chan struct{})}
}

func (l *Limiter) Acquire(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	l.mu.Lock()
	for {
		if l.max <= 0 {
			l.mu.Unlock()
			return false
		}
		if l.inUse < l.max {
			l.inUse++
			l.mu.Unlock()
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.mu.Unlock()
			return false
		}
		ch := l.wake
		l.mu.Unlock()

		t := time.NewTimer(remaining)
		select {
		case <-ch:
		case <-t.C:
		}
		t.Stop()
		l.mu.Lock()
	}
}

func (l *Limiter) Release() {
	l.mu.Lock()
	if l.inUse > 0 {
		l.inUse--
	}
	l.notifyLocked()
	l.mu.Unlock()
}

func (l *Limiter) SetMax(n int) {
	l.mu.Lock()
	l.max = n
	l.notifyLocked()
	l.mu.Unlock()
}

func (l *Limiter) Snapshot() LimiterSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterSnapshot{Max: l.max, InUse: l.inUse}
}

// notifyLocked broadcasts by closing the current wake channel; waiters
// re-check state and park on the replacement.
func (l *Limiter) notifyLocked() {
	close(l.wake)
	l.wake = make(chan struct{})
}
