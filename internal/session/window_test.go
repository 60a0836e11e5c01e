package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWindow_FiresOnceAfterIdle(t *testing.T) {
	var fired atomic.Int32
	w := OpenWindow(40*time.Millisecond, func(collected int) {
		fired.Add(1)
	})

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected exactly one expiry, got %d", got)
	}
	if !w.Done() {
		t.Error("expected window done after expiry")
	}
}

func TestWindow_CollectExtendsDeadline(t *testing.T) {
	var fired atomic.Int32
	w := OpenWindow(80*time.Millisecond, func(collected int) {
		fired.Add(1)
	})

	// Keep collecting inside the deadline; the window must not expire.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		if !w.Collect() {
			t.Fatalf("collect %d rejected before expiry", i)
		}
	}
	if fired.Load() != 0 {
		t.Fatal("window expired while being fed")
	}

	// Now go quiet and let it fire.
	time.Sleep(200 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected one expiry after quiet period, got %d", got)
	}
}

func TestWindow_ExpiryReportsCollectedCount(t *testing.T) {
	got := make(chan int, 1)
	w := OpenWindow(40*time.Millisecond, func(collected int) {
		got <- collected
	})

	w.Collect()
	w.Collect()
	w.Collect()

	select {
	case n := <-got:
		if n != 3 {
			t.Errorf("expected collected=3, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("window never expired")
	}
	if w.Collected() != 3 {
		t.Errorf("Collected() = %d, want 3", w.Collected())
	}
}

func TestWindow_CollectAfterExpiryRejected(t *testing.T) {
	w := OpenWindow(20*time.Millisecond, func(int) {})
	time.Sleep(100 * time.Millisecond)
	if w.Collect() {
		t.Error("collect accepted after expiry")
	}
}

func TestWindow_CloseSuppressesExpiry(t *testing.T) {
	var fired atomic.Int32
	w := OpenWindow(30*time.Millisecond, func(int) {
		fired.Add(1)
	})
	w.Close()
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("expiry fired after Close")
	}
	if !w.Done() {
		t.Error("expected window done after Close")
	}
	if w.Collect() {
		t.Error("collect accepted after Close")
	}
}

func TestWindow_ResetExtendsDeadline(t *testing.T) {
	var fired atomic.Int32
	w := OpenWindow(60*time.Millisecond, func(int) {
		fired.Add(1)
	})

	time.Sleep(40 * time.Millisecond)
	w.Reset()
	time.Sleep(40 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("window expired despite reset")
	}

	time.Sleep(150 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("expected one expiry, got %d", got)
	}
}

func TestWindow_PendingExpiryHonorsLateExtension(t *testing.T) {
	fired := make(chan int, 1)
	w := OpenWindow(20*time.Millisecond, func(collected int) {
		fired <- collected
	})

	// Hold the lock past the deadline so the expiry callback is left waiting
	// on it, then extend the deadline the way a collect that wins the lock
	// does. The pending callback must re-arm, not fire.
	w.mu.Lock()
	time.Sleep(50 * time.Millisecond)
	w.collected++
	w.deadline = time.Now().Add(75 * time.Millisecond)
	w.mu.Unlock()

	select {
	case <-fired:
		t.Fatal("expiry fired despite the extended deadline")
	case <-time.After(40 * time.Millisecond):
	}

	select {
	case n := <-fired:
		if n != 1 {
			t.Errorf("expected collected=1, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("window never expired after the extension elapsed")
	}
}

func TestOpenWindow_DefaultIdle(t *testing.T) {
	w := OpenWindow(0, func(int) {})
	defer w.Close()
	if w.idle != DefaultIdleTimeout {
		t.Errorf("expected default idle %v, got %v", DefaultIdleTimeout, w.idle)
	}
}
