// Package clock abstracts wall time and timers so that throttled emission,
// probe retries and debounced route requests can be driven deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending one-shot or repeating callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented a future fire.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) Timer
	// Every runs fn every d until the returned timer is stopped.
	Every(d time.Duration, fn func()) Timer
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (Real) Every(d time.Duration, fn func()) Timer {
	t := &realTicker{ticker: time.NewTicker(d), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				fn()
			}
		}
	}()
	return t
}

type realTicker struct {
	ticker *time.Ticker
	once   sync.Once
	done   chan struct{}
}

func (t *realTicker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}

// Fake is a manually advanced clock. Callbacks run synchronously on the
// goroutine calling Advance, in due-time order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

type fakeTimer struct {
	clock  *Fake
	id     int
	at     time.Time
	period time.Duration
	fn     func()
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.schedule(d, 0, fn)
}

func (f *Fake) Every(d time.Duration, fn func()) Timer {
	return f.schedule(d, d, fn)
}

func (f *Fake) schedule(d, period time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{clock: f, id: f.seq, at: f.now.Add(d), period: period, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Pending reports how many timers are still scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		if len(f.timers) == 0 {
			f.mu.Unlock()
			break
		}
		sort.SliceStable(f.timers, func(i, j int) bool {
			if f.timers[i].at.Equal(f.timers[j].at) {
				return f.timers[i].id < f.timers[j].id
			}
			return f.timers[i].at.Before(f.timers[j].at)
		})
		next := f.timers[0]
		if next.at.After(target) {
			f.mu.Unlock()
			break
		}
		f.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			f.timers = f.timers[1:]
		}
		fn := next.fn
		f.mu.Unlock()
		fn()
	}

	f.mu.Lock()
	f.now = target
	f.mu.Unlock()
}

func (t *fakeTimer) Stop() bool {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, other := range f.timers {
		if other == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}
