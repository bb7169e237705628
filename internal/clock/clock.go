// Package clock abstracts wall-clock time and one-shot timers so that the
// cache services can be driven deterministically in tests.
//
// Production code uses Real, which delegates to the time package. Tests use
// Fake, whose timers only fire when the fake time is advanced past their
// deadline.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is the subset of *time.Timer used by the services.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the system clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Fake is a manually advanced clock. It is safe for concurrent use.
// Callbacks of expired timers run synchronously inside Advance/Set, in
// deadline order, without the clock's lock held.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	seq    int
}

type fakeTimer struct {
	c        *Fake
	deadline time.Time
	f        func()
	seq      int
	stopped  bool
	fired    bool
}

// NewFake returns a Fake clock positioned at now.
func NewFake(now time.Time) *Fake { return &Fake{now: now} }

// Now returns the fake current time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the fake time reaches now+d.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, deadline: c.now.Add(d), f: f, seq: c.seq}
	c.timers = append(c.timers, t)
	return t
}

// Stop implements Timer.
func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d and fires every due timer.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set moves the clock to t (never backwards for timer purposes) and fires
// every due timer. Timers armed by a callback are considered too.
func (c *Fake) Set(t time.Time) {
	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, ft := range c.pending() {
			if !ft.deadline.After(t) {
				due = ft
				break
			}
		}
		if due == nil {
			c.now = t
			c.mu.Unlock()
			return
		}
		if due.deadline.After(c.now) {
			c.now = due.deadline
		}
		due.fired = true
		c.mu.Unlock()
		due.f()
	}
}

// Pending reports how many timers are armed and not yet fired or stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending())
}

// pending returns live timers sorted by deadline; callers hold c.mu.
func (c *Fake) pending() []*fakeTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	out := make([]*fakeTimer, len(live))
	copy(out, live)
	sort.Slice(out, func(i, j int) bool {
		if out[i].deadline.Equal(out[j].deadline) {
			return out[i].seq < out[j].seq
		}
		return out[i].deadline.Before(out[j].deadline)
	})
	return out
}
