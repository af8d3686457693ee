// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ringbuf provides an append-only sequence with optional bounded
// retention.
//
// # Description
//
// With a positive capacity a Ring behaves as a circular buffer: appends
// are O(1) and once full the oldest record is evicted. With capacity <= 0
// it grows without bound. The world core applies the same retention
// policy to version history, change log, and message queue; eviction is
// an explicit, documented lossy operation.
//
// # Thread Safety
//
// NOT safe for concurrent use; the owning component synchronizes.
package ringbuf

// Ring is the retention container. The zero value is not usable; use New.
type Ring[T any] struct {
	data  []T
	head  int // next write position (bounded mode)
	tail  int // oldest element position (bounded mode)
	count int
	cap   int
	full  bool
}

// New creates a Ring. capacity <= 0 means unbounded.
func New[T any](capacity int) *Ring[T] {
	r := &Ring[T]{cap: capacity}
	if capacity > 0 {
		r.data = make([]T, capacity)
	}
	return r
}

// Append adds a record, evicting the oldest when at capacity.
func (r *Ring[T]) Append(item T) {
	if r.cap <= 0 {
		r.data = append(r.data, item)
		r.count++
		return
	}

	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap

	if r.full {
		r.tail = (r.tail + 1) % r.cap
	} else {
		r.count++
		if r.count == r.cap {
			r.full = true
		}
	}
}

// Len returns the number of retained records.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the configured capacity; <= 0 means unbounded.
func (r *Ring[T]) Cap() int {
	return r.cap
}

// AtCapacity reports whether the next Append will evict.
func (r *Ring[T]) AtCapacity() bool {
	return r.cap > 0 && r.count == r.cap
}

// At returns the i-th retained record, oldest first.
func (r *Ring[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= r.count {
		return zero, false
	}
	if r.cap <= 0 {
		return r.data[i], true
	}
	return r.data[(r.tail+i)%r.cap], true
}

// Last returns up to n records taken from the newest end, in
// chronological order (oldest of the n first).
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 || r.count == 0 {
		return []T{}
	}
	if n > r.count {
		n = r.count
	}

	result := make([]T, n)
	start := r.count - n
	for i := 0; i < n; i++ {
		v, _ := r.At(start + i)
		result[i] = v
	}
	return result
}

// Slice returns all retained records, oldest first.
func (r *Ring[T]) Slice() []T {
	return r.Last(r.count)
}

// ForEach calls fn for each retained record from oldest to newest,
// stopping early when fn returns false.
func (r *Ring[T]) ForEach(fn func(item T) bool) {
	for i := 0; i < r.count; i++ {
		v, _ := r.At(i)
		if !fn(v) {
			return
		}
	}
}
