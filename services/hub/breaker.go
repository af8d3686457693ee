// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import "time"

// breakerState is the circuit state of one agent's handler.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker protects handler dispatch from a repeatedly failing
// agent handler.
//
// # Description
//
// Closed: handlers run normally. After threshold consecutive failures the
// circuit opens and dispatch is skipped. Once the cooldown elapses the
// circuit goes half-open: the next dispatch is attempted, success closes
// the circuit, failure re-opens it.
//
// # Thread Safety
//
// NOT safe for concurrent use; the hub's mutex guards it.
type circuitBreaker struct {
	threshold int
	cooldown  time.Duration

	state       breakerState
	failures    int
	lastFailure time.Time
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a dispatch attempt may proceed.
func (b *circuitBreaker) Allow() bool {
	if b.threshold <= 0 {
		return true
	}
	if b.state == breakerOpen {
		if time.Since(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = breakerHalfOpen
	}
	return true
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *circuitBreaker) RecordSuccess() {
	b.failures = 0
	b.state = breakerClosed
}

// RecordFailure counts a failure, opening the circuit at the threshold
// or on any half-open failure.
func (b *circuitBreaker) RecordFailure() {
	if b.threshold <= 0 {
		return
	}
	b.failures++
	b.lastFailure = time.Now()
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
	}
}
