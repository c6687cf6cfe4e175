package runtime

import (
	"sync"
	"testing"
	"time"
)

func TestLimiterAcquireRelease(t *testing.T) {
	l := NewLimiter(2)
	if !l.Acquire(time.Millisecond) {
		t.Fatal("first acquire should succeed")
	}
	if !l.Acquire(time.Millisecond) {
		t.Fatal("second acquire should succeed")
	}
	if l.Acquire(10 * time.Millisecond) {
		t.Fatal("third acquire should time out")
	}
	l.Release()
	if !l.Acquire(time.Millisecond) {
		t.Fatal("acquire after release should succeed")
	}
}

func TestLimiterZeroMaxFailsFast(t *testing.T) {
	l := NewLimiter(0)
	start := time.Now()
	if l.Acquire(5 * time.Second) {
		t.Fatal("acquire against max=0 must fail")
	}
	if time.Since(start) > time.Second {
		t.Fatal("max=0 acquire should not wait out the timeout")
	}
}

func TestLimiterSetMaxZeroWakesWaiters(t *testing.T) {
	l := NewLimiter(1)
	if !l.Acquire(time.Millisecond) {
		t.Fatal("setup acquire failed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- l.Acquire(5 * time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	l.SetMax(0)

	select {
	case ok := <-done:
		if ok {
			t.Fatal("waiter must fail once max drops to 0")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by SetMax(0)")
	}
}

func TestLimiterRaiseMaxWakesWaiter(t *testing.T) {
	l := NewLimiter(1)
	if !l.Acquire(time.Millisecond) {
		t.Fatal("setup acquire failed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- l.Acquire(5 * time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	l.SetMax(2)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("waiter should acquire after capacity was raised")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by SetMax(2)")
	}
}

func TestLimiterSnapshot(t *testing.T) {
	l := NewLimiter(3)
	l.Acquire(time.Millisecond)
	l.Acquire(time.Millisecond)
	snap := l.Snapshot()
	if snap.Max != 3 || snap.InUse != 2 {
		t.Fatalf("snapshot = %+v, want max=3 in_use=2", snap)
	}
	l.Release()
	l.Release()
	// Release below zero clamps.
	l.Release()
	if snap := l.Snapshot(); snap.InUse != 0 {
		t.Fatalf("in_use = %d, want 0", snap.InUse)
	}
}

func TestLimiterConcurrentAccounting(t *testing.T) {
	l := NewLimiter(4)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire(5 * time.Second) {
				time.Sleep(time.Millisecond)
				l.Release()
			}
		}()
	}
	wg.Wait()
	if snap := l.Snapshot(); snap.InUse != 0 {
		t.Fatalf("in_use = %d after all released", snap.InUse)
	}
}
