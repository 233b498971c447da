// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for testing. Timers, tickers, and
// sleeps block until the clock is advanced past their deadline.
//
// AfterFunc callbacks run synchronously during Advance in deadline
// order. Do not call Sleep or Advance from within a callback — that
// deadlocks.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	pending    []*pendingTimer
	registered *sync.Cond
}

// pendingTimer is one scheduled operation: a timer channel, an
// AfterFunc callback, or a ticker (interval > 0).
type pendingTimer struct {
	deadline time.Time
	ch       chan time.Time // nil for AfterFunc
	fn       func()         // nil for channel timers
	interval time.Duration  // non-zero for tickers; rescheduled on fire
	stopped  bool
	fired    bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives after duration d elapses. If
// d <= 0 the channel receives immediately without registering a timer.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, &pendingTimer{
		deadline: c.now.Add(d),
		ch:       ch,
	})
	c.registered.Broadcast()
	return ch
}

// AfterFunc schedules f to run after duration d. If d <= 0, f runs
// synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d <= 0 {
		c.mu.Unlock()
		f()
		c.mu.Lock()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}

	timer := &pendingTimer{
		deadline: c.now.Add(d),
		fn:       f,
	}
	c.pending = append(c.pending, timer)
	c.registered.Broadcast()

	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if timer.stopped || timer.fired {
				return false
			}
			timer.stopped = true
			return true
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasActive := !timer.stopped && !timer.fired
			timer.stopped = false
			timer.fired = false
			timer.deadline = c.now.Add(d)
			if !wasActive {
				// Fired timers were dropped from the pending list.
				c.pending = append(c.pending, timer)
				c.registered.Broadcast()
			}
			return wasActive
		},
	}
}

// NewTicker returns a Ticker delivering ticks at the given interval.
// Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ticker := &pendingTimer{
		deadline: c.now.Add(d),
		ch:       ch,
		interval: d,
	}
	c.pending = append(c.pending, ticker)
	c.registered.Broadcast()

	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.stopped = true
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.interval = d
			ticker.deadline = c.now.Add(d)
			ticker.stopped = false
		},
	}
}

// Sleep pauses the calling goroutine until the clock advances past the
// deadline. If d <= 0, returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every timer, ticker,
// and sleep whose deadline falls within the new time, in deadline
// order. Channel sends are non-blocking: a tick that finds its buffer
// full is dropped, matching time.Ticker. A ticker whose interval is
// spanned multiple times fires once per interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, timer := range due {
			if timer.fn != nil {
				timer.fn()
			} else if timer.ch != nil {
				select {
				case timer.ch <- target:
				default:
				}
			}
		}
	}
}

// takeDue removes due timers from the pending list, reschedules
// tickers, and returns the timers to fire. One-shot timers are marked
// fired and dropped from the list.
func (c *FakeClock) takeDue(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*pendingTimer
	for _, timer := range c.pending {
		if timer.stopped {
			continue
		}
		if !timer.deadline.After(target) {
			due = append(due, timer)
		} else {
			remaining = append(remaining, timer)
		}
	}
	for _, timer := range due {
		if timer.interval > 0 {
			timer.deadline = timer.deadline.Add(timer.interval)
			remaining = append(remaining, timer)
		} else {
			timer.fired = true
		}
	}
	c.pending = remaining
	return due
}

// WaitForTimers blocks until at least n timers, tickers, or sleeps are
// pending. Call it before Advance when the timers are registered by
// other goroutines.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeCountLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of active pending timers. Useful for
// test assertions.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeCountLocked()
}

func (c *FakeClock) activeCountLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}
