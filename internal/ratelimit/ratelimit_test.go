package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestWait_SequentialSpacing(t *testing.T) {
	const interval = 20 * time.Millisecond

	limiter := New(interval)

	start := time.Now()
	for i := 0; i < 4; i++ {
		limiter.Wait()
	}

	if elapsed := time.Since(start); elapsed < 3*interval {
		t.Errorf("4 waits took %v, want at least %v", elapsed, 3*interval)
	}
}

func TestWait_ConcurrentCallersSerialize(t *testing.T) {
	const (
		interval = 15 * time.Millisecond
		callers  = 5
	)

	limiter := New(interval)

	var wg sync.WaitGroup

	start := time.Now()

	for i := 0; i < callers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			limiter.Wait()
		}()
	}

	wg.Wait()

	// Concurrent waiters must not all fire at once; M calls span >= (M-1)*T.
	if elapsed := time.Since(start); elapsed < (callers-1)*interval {
		t.Errorf("%d concurrent waits took %v, want at least %v", callers, elapsed, (callers-1)*interval)
	}
}

func TestSetInterval_ReturnsPrevious(t *testing.T) {
	limiter := New(500 * time.Millisecond)

	prev := limiter.SetInterval(100 * time.Millisecond)
	if prev != 500*time.Millisecond {
		t.Errorf("SetInterval returned %v, want 500ms", prev)
	}

	if got := limiter.Interval(); got != 100*time.Millisecond {
		t.Errorf("Interval() = %v, want 100ms", got)
	}

	limiter.SetInterval(prev)

	if got := limiter.Interval(); got != 500*time.Millisecond {
		t.Errorf("Interval() after restore = %v, want 500ms", got)
	}
}

func TestWait_FirstCallDoesNotBlock(t *testing.T) {
	limiter := New(time.Second)

	start := time.Now()
	limiter.Wait()

	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first wait blocked for %v, want immediate", elapsed)
	}
}
