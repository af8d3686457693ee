// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worldstate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUpdateContext_VersionsAreMonotonic verifies versions count up from 1
// without gaps and each snapshot captures the full merged document.
func TestUpdateContext_VersionsAreMonotonic(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	v1, err := store.UpdateContext(ctx, Document{"player_name": "Alice"}, "story_generator", "intro")
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := store.UpdateContext(ctx, Document{"current_location": "Tavern"}, "world_builder", "scene")
	require.NoError(t, err)
	assert.Equal(t, 2, v2)
	assert.Equal(t, 2, store.CurrentVersion())

	snapshot, ok := store.GetVersion(2)
	require.True(t, ok)
	assert.Equal(t, "Alice", snapshot.ContextData["player_name"], "snapshots carry the full merged document")
	assert.Equal(t, "Tavern", snapshot.ContextData["current_location"])
	assert.Equal(t, "world_builder", snapshot.ChangedBy)
	assert.Len(t, snapshot.Checksum, 16)
}

// TestUpdateContext_EmptyChangedBy verifies the producer identity is required.
func TestUpdateContext_EmptyChangedBy(t *testing.T) {
	store := NewStore()

	_, err := store.UpdateContext(context.Background(), Document{"k": 1}, "", "no author")
	assert.ErrorIs(t, err, ErrEmptyChangedBy)
	assert.Equal(t, 0, store.CurrentVersion(), "failed updates never advance the version")
}

// TestUpdateContext_ChecksumAbortsCommit verifies an unserializable value
// aborts the commit without touching the live document.
func TestUpdateContext_ChecksumAbortsCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.UpdateContext(ctx, Document{"k": "ok"}, "a", "")
	require.NoError(t, err)

	_, err = store.UpdateContext(ctx, Document{"bad": make(chan int)}, "a", "")
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, 1, store.CurrentVersion())
	assert.Equal(t, "ok", store.GetContext()["k"])
}

// TestGetContext_Projection verifies key projection omits absent keys.
func TestGetContext_Projection(t *testing.T) {
	store := NewStore()
	_, err := store.UpdateContext(context.Background(), Document{"a": 1, "b": 2}, "x", "")
	require.NoError(t, err)

	got := store.GetContext("a", "missing")
	assert.Equal(t, map[string]any{"a": 1}, map[string]any(got))
	_, present := got["missing"]
	assert.False(t, present, "absent keys are omitted, never inserted as nil")
}

// TestGetContext_ReturnsCopies verifies callers cannot mutate store state
// through returned documents.
func TestGetContext_ReturnsCopies(t *testing.T) {
	store := NewStore()
	_, err := store.UpdateContext(context.Background(),
		Document{"inventory": map[string]any{"gold": 10}}, "x", "")
	require.NoError(t, err)

	got := store.GetContext()
	got["inventory"].(map[string]any)["gold"] = 9999

	fresh := store.GetContext()
	assert.Equal(t, 10, fresh["inventory"].(map[string]any)["gold"])
}

// TestSubscribers_SelfNotificationExcluded verifies a producer never hears
// its own commits.
func TestSubscribers_SelfNotificationExcluded(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var mu sync.Mutex
	calls := map[string]int{}
	record := func(name string) SubscriberFunc {
		return func(updates Document, changedBy string) {
			mu.Lock()
			calls[name]++
			mu.Unlock()
		}
	}

	store.SubscribeToChanges("story_generator", record("story_generator"))
	store.SubscribeToChanges("world_builder", record("world_builder"))

	_, err := store.UpdateContext(ctx, Document{"k": 1}, "story_generator", "")
	require.NoError(t, err)

	assert.Equal(t, 0, calls["story_generator"], "author must not be notified")
	assert.Equal(t, 1, calls["world_builder"])
}

// TestSubscribers_PanicIsolation verifies one panicking subscriber never
// affects the commit or the other subscribers.
func TestSubscribers_PanicIsolation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var mu sync.Mutex
	delivered := 0

	store.SubscribeToChanges("healthy_one", func(updates Document, changedBy string) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})
	store.SubscribeToChanges("broken", func(updates Document, changedBy string) {
		panic("subscriber bug")
	})
	store.SubscribeToChanges("healthy_two", func(updates Document, changedBy string) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	v, err := store.UpdateContext(ctx, Document{"k": 1}, "author", "")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, delivered)
}

// TestSubscribers_ReceiveUpdatesNotMergedDocument verifies the callback
// payload is the raw updates map.
func TestSubscribers_ReceiveUpdatesNotMergedDocument(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.UpdateContext(ctx, Document{"existing": "value"}, "seed", "")
	require.NoError(t, err)

	var got Document
	store.SubscribeToChanges("listener", func(updates Document, changedBy string) {
		got = updates
	})

	_, err = store.UpdateContext(ctx, Document{"new_key": 42}, "author", "")
	require.NoError(t, err)

	assert.Equal(t, 42, got["new_key"])
	_, present := got["existing"]
	assert.False(t, present, "subscribers see the updates map, not the merged document")
}

// TestGetVersionHistory_Retention verifies bounded history evicts oldest
// versions and GetVersion reflects eviction.
func TestGetVersionHistory_Retention(t *testing.T) {
	store := NewStoreWithConfig(StoreConfig{HistoryLimit: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.UpdateContext(ctx, Document{"n": i}, "x", "")
		require.NoError(t, err)
	}

	history := store.GetVersionHistory(10)
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].Version, "oldest retained version")
	assert.Equal(t, 5, history[2].Version, "chronological order, newest last")

	_, ok := store.GetVersion(1)
	assert.False(t, ok, "evicted versions are gone")
	_, ok = store.GetVersion(5)
	assert.True(t, ok)
}

// TestGetVersionHistory_NonPositiveLimit verifies a limit <= 0 returns
// nothing rather than everything.
func TestGetVersionHistory_NonPositiveLimit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_, err := store.UpdateContext(ctx, Document{"n": 1}, "x", "")
	require.NoError(t, err)

	assert.Empty(t, store.GetVersionHistory(0))
	assert.Empty(t, store.GetVersionHistory(-1))
	assert.Len(t, store.GetVersionHistory(store.CurrentVersion()), 1)
}

// TestGetChangeLog_MatchesCommits verifies the change log is 1:1 with
// versions and carries correct diffs.
func TestGetChangeLog_MatchesCommits(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.UpdateContext(ctx, Document{"a": 1}, "x", "first")
	require.NoError(t, err)
	_, err = store.UpdateContext(ctx, Document{"a": 2, "b": 3}, "y", "second")
	require.NoError(t, err)

	entries := store.GetChangeLog(10)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].Version)
	assert.Equal(t, 1, entries[0].Changes.Added["a"])

	assert.Equal(t, 2, entries[1].Version)
	assert.Equal(t, ModifiedValue{Old: 1, New: 2}, entries[1].Changes.Modified["a"])
	assert.Equal(t, 3, entries[1].Changes.Added["b"])
}

// TestUpdateContext_ConcurrentCommits verifies no version is skipped or
// duplicated under concurrency.
func TestUpdateContext_ConcurrentCommits(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	const workers = 8
	const commits = 25

	var wg sync.WaitGroup
	seen := make(chan int, workers*commits)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < commits; i++ {
				v, err := store.UpdateContext(ctx, Document{"n": i}, "worker", "")
				if err != nil {
					t.Error(err)
					return
				}
				seen <- v
			}
		}(w)
	}
	wg.Wait()
	close(seen)

	versions := map[int]bool{}
	for v := range seen {
		assert.False(t, versions[v], "version %d assigned twice", v)
		versions[v] = true
	}
	assert.Len(t, versions, workers*commits)
	assert.Equal(t, workers*commits, store.CurrentVersion())
}

// TestValidateConsistency covers the built-in structural check.
func TestValidateConsistency(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	report := store.ValidateConsistency()
	assert.False(t, report.IsConsistent)
	assert.Len(t, report.Issues, 3, "all required fields missing")

	_, err := store.UpdateContext(ctx, Document{
		KeyPlayerName:      "Alice",
		KeyCurrentLocation: "Tavern",
		KeyGameState:       "exploring",
		KeyPlayerHealth:    80,
		KeyStoryProgress:   25,
	}, "seed", "")
	require.NoError(t, err)

	report = store.ValidateConsistency()
	assert.True(t, report.IsConsistent)
	assert.Empty(t, report.Issues)

	_, err = store.UpdateContext(ctx, Document{KeyPlayerHealth: 150}, "seed", "")
	require.NoError(t, err)

	report = store.ValidateConsistency()
	assert.False(t, report.IsConsistent)
	assert.Contains(t, report.Issues, "Invalid player health")
}
