package clock

import (
	"testing"
	"time"
)

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)
	ticker := f.NewTicker(time.Second)
	defer ticker.Stop()

	f.Advance(999 * time.Millisecond)
	select {
	case <-ticker.C:
		t.Fatalf("ticker fired before its deadline")
	default:
	}

	f.Advance(time.Millisecond)
	select {
	case got := <-ticker.C:
		if !got.Equal(start.Add(time.Second)) {
			t.Fatalf("unexpected tick time %v", got)
		}
	default:
		t.Fatalf("expected tick after one second")
	}
}

func TestFakeTickerStop(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ticker := f.NewTicker(10 * time.Millisecond)
	if f.Pending() != 1 {
		t.Fatalf("expected one pending waiter, got %d", f.Pending())
	}
	ticker.Stop()
	if f.Pending() != 0 {
		t.Fatalf("expected stopped ticker to be inactive")
	}
	f.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatalf("stopped ticker fired")
	default:
	}
}

func TestFakeAfter(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ch := f.After(5 * time.Second)

	done := make(chan struct{})
	go func() {
		f.WaitForTimers(1)
		f.Advance(5 * time.Second)
		close(done)
	}()
	<-done
	select {
	case <-ch:
	default:
		t.Fatalf("After channel did not fire")
	}
	if f.Pending() != 0 {
		t.Fatalf("one-shot waiter should be removed after firing")
	}
}
