// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRing_Unbounded verifies capacity <= 0 retains everything.
func TestRing_Unbounded(t *testing.T) {
	r := New[int](0)

	for i := 1; i <= 1000; i++ {
		r.Append(i)
	}

	assert.Equal(t, 1000, r.Len())
	assert.False(t, r.AtCapacity())

	first, ok := r.At(0)
	require.True(t, ok)
	assert.Equal(t, 1, first)
}

// TestRing_EvictsOldest verifies bounded rings drop from the front.
func TestRing_EvictsOldest(t *testing.T) {
	r := New[int](3)

	for i := 1; i <= 5; i++ {
		r.Append(i)
	}

	assert.Equal(t, 3, r.Len())
	assert.True(t, r.AtCapacity())
	assert.Equal(t, []int{3, 4, 5}, r.Slice())
}

// TestRing_Last returns the newest n in chronological order.
func TestRing_Last(t *testing.T) {
	r := New[string](0)
	r.Append("a")
	r.Append("b")
	r.Append("c")

	assert.Equal(t, []string{"b", "c"}, r.Last(2))
	assert.Equal(t, []string{"a", "b", "c"}, r.Last(10), "limit beyond length returns everything")
	assert.Empty(t, r.Last(0))
}

// TestRing_At verifies bounds handling.
func TestRing_At(t *testing.T) {
	r := New[int](2)
	r.Append(7)

	v, ok := r.At(0)
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = r.At(1)
	assert.False(t, ok)
	_, ok = r.At(-1)
	assert.False(t, ok)
}

// TestRing_ForEach verifies iteration order and early stop.
func TestRing_ForEach(t *testing.T) {
	r := New[int](0)
	for i := 1; i <= 4; i++ {
		r.Append(i)
	}

	var seen []int
	r.ForEach(func(v int) bool {
		seen = append(seen, v)
		return v < 3
	})
	assert.Equal(t, []int{1, 2, 3}, seen, "iteration should stop when the callback returns false")
}
