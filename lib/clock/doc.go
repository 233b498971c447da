// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, time.AfterFunc, or time.Sleep
// directly. Real() provides standard library behavior; Fake() provides
// a deterministic clock for tests that advances only when Advance is
// called.
//
// Structs that use time carry a Clock field:
//
//	type Engine struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// Tests drive time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	engine := &Engine{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second)
//
// WaitForTimers blocks until goroutines have registered their pending
// timers, removing the race between timer registration and Advance
// that makes time.Sleep-based test synchronization flaky.
package clock
