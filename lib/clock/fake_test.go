// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	c := Fake(testEpoch)
	if !c.Now().Equal(testEpoch) {
		t.Errorf("Now() = %v, want %v", c.Now(), testEpoch)
	}
	c.Advance(time.Minute)
	if want := testEpoch.Add(time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfter(t *testing.T) {
	c := Fake(testEpoch)
	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(testEpoch.Add(5 * time.Second)) {
			t.Errorf("fire time = %v", fired)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(testEpoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeAfterFunc(t *testing.T) {
	c := Fake(testEpoch)
	var calls atomic.Int64
	timer := c.AfterFunc(time.Second, func() { calls.Add(1) })

	c.Advance(time.Second)
	if got := calls.Load(); got != 1 {
		t.Fatalf("callback ran %d times, want 1", got)
	}
	// Advancing again must not re-fire a one-shot.
	c.Advance(time.Second)
	if got := calls.Load(); got != 1 {
		t.Fatalf("callback re-fired: %d calls", got)
	}
	if timer.Stop() {
		t.Error("Stop on a fired timer should return false")
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(testEpoch)
	var calls atomic.Int64
	timer := c.AfterFunc(time.Second, func() { calls.Add(1) })

	if !timer.Stop() {
		t.Fatal("Stop on an active timer should return true")
	}
	c.Advance(time.Minute)
	if got := calls.Load(); got != 0 {
		t.Errorf("stopped timer fired %d times", got)
	}
}

func TestFakeTimerReset(t *testing.T) {
	c := Fake(testEpoch)
	var calls atomic.Int64
	timer := c.AfterFunc(time.Second, func() { calls.Add(1) })

	c.Advance(time.Second)
	if got := calls.Load(); got != 1 {
		t.Fatalf("first fire: %d calls", got)
	}
	if timer.Reset(time.Second) {
		t.Error("Reset on a fired timer should return false")
	}
	c.Advance(time.Second)
	if got := calls.Load(); got != 2 {
		t.Errorf("after Reset: %d calls, want 2", got)
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(testEpoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not tick at its interval")
	}

	// Spanning three intervals delivers ticks one per interval, but
	// the capacity-1 channel drops what the consumer does not drain.
	c.Advance(3 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker dropped all ticks for a spanning advance")
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(testEpoch)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker ticked")
	default:
	}
}

func TestFakeSleep(t *testing.T) {
	c := Fake(testEpoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(10 * time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(10 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance past its deadline")
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(testEpoch)
	for i := 0; i < 3; i++ {
		go c.Sleep(time.Second)
	}
	c.WaitForTimers(3)
	if got := c.PendingCount(); got != 3 {
		t.Errorf("PendingCount() = %d, want 3", got)
	}
	c.Advance(time.Second)
}

func TestFireOrder(t *testing.T) {
	c := Fake(testEpoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("fire order = %v, want [1 2 3]", order)
	}
}
