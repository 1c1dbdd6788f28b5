package clock

import "time"

// Clock is the time source used by loops that must be testable without the
// wall clock. Production code uses Real; tests use a *Fake.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *Ticker
	After(d time.Duration) <-chan time.Time
}

// Ticker delivers ticks on C until Stop is called. C has capacity 1 and
// drops ticks when the reader falls behind, like time.Ticker.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() {
	if t != nil && t.stop != nil {
		t.stop()
	}
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
