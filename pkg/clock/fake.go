package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Time stands still until Advance is
// called; tickers and After channels fire in deadline order as the clock
// passes their deadlines.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	interval time.Duration
	ch       chan time.Time
	stopped  bool
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, &waiter{deadline: f.now.Add(d), ch: ch})
	f.cond.Broadcast()
	return ch
}

func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &waiter{deadline: f.now.Add(d), interval: d, ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	f.cond.Broadcast()
	return &Ticker{C: w.ch, stop: func() {
		f.mu.Lock()
		w.stopped = true
		f.mu.Unlock()
	}}
}

// Advance moves the clock forward by d and fires every waiter whose deadline
// is reached. Sends never block; a full ticker channel drops the tick.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	target := f.now
	f.mu.Unlock()

	for {
		due := f.expired(target)
		if len(due) == 0 {
			return
		}
		for _, w := range due {
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

func (f *Fake) expired(target time.Time) []*waiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due, keep []*waiter
	for _, w := range f.waiters {
		switch {
		case w.stopped:
		case !w.deadline.After(target):
			due = append(due, w)
			if w.interval > 0 {
				w.deadline = w.deadline.Add(w.interval)
				keep = append(keep, w)
			}
		default:
			keep = append(keep, w)
		}
	}
	f.waiters = keep
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due
}

// WaitForTimers blocks until at least n tickers or After channels are pending.
// Tests call it before Advance so a goroutine has registered its timers.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.cond.Wait()
	}
}

// Pending reports the number of active waiters.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

func (f *Fake) pendingLocked() int {
	n := 0
	for _, w := range f.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
