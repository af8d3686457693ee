// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// TestAppendReplay verifies entries come back in version order.
func TestAppendReplay(t *testing.T) {
	j := openTestJournal(t)

	// Append out of order; replay must still be version-ordered.
	for _, v := range []int{3, 1, 2} {
		err := j.Append(worldstate.ChangeLogEntry{
			Version:   v,
			Timestamp: time.Now(),
			ChangedBy: "producer",
			Changes: worldstate.ChangeDiff{
				Added:    map[string]any{"n": v},
				Modified: map[string]worldstate.ModifiedValue{},
				Removed:  map[string]any{},
			},
		})
		require.NoError(t, err)
	}

	var versions []int
	err := j.Replay(func(entry worldstate.ChangeLogEntry) error {
		versions = append(versions, entry.Version)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions)
}

// TestRebuild verifies folding diffs reconstructs the document.
func TestRebuild(t *testing.T) {
	j := openTestJournal(t)
	store := worldstate.NewStoreWithConfig(worldstate.StoreConfig{Sink: j})
	ctx := context.Background()

	// float64 values: JSON round-tripping through the journal decodes
	// numbers as float64, so the comparison below stays type-exact.
	_, err := store.UpdateContext(ctx, worldstate.Document{"player_name": "Alice", "player_health": float64(100)}, "seed", "")
	require.NoError(t, err)
	_, err = store.UpdateContext(ctx, worldstate.Document{"player_health": float64(80), "current_location": "Cave"}, "combat", "")
	require.NoError(t, err)

	doc, last, err := j.Rebuild()
	require.NoError(t, err)
	assert.Equal(t, 2, last)
	assert.Equal(t, store.GetContext(), doc)
}

// TestRebuild_Empty verifies an empty journal rebuilds to an empty
// document at version 0.
func TestRebuild_Empty(t *testing.T) {
	j := openTestJournal(t)

	doc, last, err := j.Rebuild()
	require.NoError(t, err)
	assert.Equal(t, 0, last)
	assert.Empty(t, doc)
}

// TestClosedJournal verifies operations after Close fail with ErrClosed.
func TestClosedJournal(t *testing.T) {
	j, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(worldstate.ChangeLogEntry{Version: 1}), ErrClosed)
	assert.ErrorIs(t, j.Replay(func(worldstate.ChangeLogEntry) error { return nil }), ErrClosed)
	assert.NoError(t, j.Close(), "Close is idempotent")
}
