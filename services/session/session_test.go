// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/worldloom/services/consistency"
	"github.com/AleutianAI/worldloom/services/hub"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

func newTestSession() (*Session, *worldstate.Store, *hub.Hub) {
	store := worldstate.NewStore()
	h := hub.NewHub(store)
	validator := consistency.NewValidator(store)
	resolver := consistency.NewResolver()
	return New(store, h, validator, resolver), store, h
}

// TestNew_RegistersRoles verifies all standard producers exist on the hub.
func TestNew_RegistersRoles(t *testing.T) {
	_, _, h := newTestSession()

	stats := h.AgentStatistics()
	for _, role := range Roles {
		assert.Contains(t, stats.AgentDetails, role)
	}
	assert.Contains(t, stats.AgentDetails, "system")
}

// TestStartNewGame verifies the seeded context.
func TestStartNewGame(t *testing.T) {
	sess, store, _ := newTestSession()

	version, err := sess.StartNewGame(context.Background(), "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	doc := store.GetContext()
	assert.Equal(t, "Alice", doc[worldstate.KeyPlayerName])
	assert.Equal(t, "Adventurer", doc["player_class"], "empty class defaults")
	assert.Equal(t, 100, doc[worldstate.KeyPlayerHealth])
	assert.Equal(t, "Starting Area", doc[worldstate.KeyCurrentLocation])
	assert.Equal(t, StateBeginning, doc[worldstate.KeyGameState])

	report := store.ValidateConsistency()
	assert.True(t, report.IsConsistent, "a fresh game passes the structural check")
}

// TestProcessPlayerAction_Accepted verifies validation, commit, and the
// context_sync broadcast.
func TestProcessPlayerAction_Accepted(t *testing.T) {
	sess, store, h := newTestSession()
	ctx := context.Background()
	_, err := sess.StartNewGame(ctx, "Alice", "Ranger")
	require.NoError(t, err)

	result, err := sess.ProcessPlayerAction(ctx, RoleStory, "cross the bridge", worldstate.Document{
		worldstate.KeyCurrentLocation: "Old Bridge",
		worldstate.KeyStoryProgress:   15,
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 2, result.Version)
	assert.Equal(t, "Old Bridge", store.GetContext()[worldstate.KeyCurrentLocation])

	// Other producers see the sync broadcast.
	syncs := h.MessagesFor(RoleAudio, hub.TypeContextSync)
	require.Len(t, syncs, 1)
	assert.Equal(t, "cross the bridge", syncs[0].Content["action"])
	assert.Equal(t, 2, syncs[0].Content["version"])
}

// TestProcessPlayerAction_Rejected verifies nothing commits on a story
// conflict and the detail is reported.
func TestProcessPlayerAction_Rejected(t *testing.T) {
	sess, store, _ := newTestSession()
	ctx := context.Background()
	_, err := sess.StartNewGame(ctx, "Alice", "Ranger")
	require.NoError(t, err)

	result, err := sess.ProcessPlayerAction(ctx, RoleCharacter, "drink mystery potion", worldstate.Document{
		worldstate.KeyPlayerHealth: 200,
	})
	require.NoError(t, err, "a rejection is a result, not an error")
	assert.False(t, result.Accepted)
	assert.Equal(t, 0, result.Version)
	assert.NotEmpty(t, result.Story.Conflicts)
	assert.False(t, result.Validation.IsValid, "200 health also violates health_bounds")

	assert.Equal(t, 1, store.CurrentVersion(), "rejected actions never commit")
	assert.Equal(t, 100, store.GetContext()[worldstate.KeyPlayerHealth])
}

// TestResolveStoryConflicts verifies conflict mapping and resolver
// dispatch.
func TestResolveStoryConflicts(t *testing.T) {
	store := worldstate.NewStore()
	h := hub.NewHub(store)
	validator := consistency.NewValidator(store)
	resolver := consistency.NewResolver()
	resolver.RegisterResolver("story_conflict", func(c consistency.Conflict) (consistency.Resolution, error) {
		return consistency.Resolution{Conflict: c, Action: "asked the story generator to re-plan"}, nil
	})
	sess := New(store, h, validator, resolver)
	ctx := context.Background()
	_, err := sess.StartNewGame(ctx, "Alice", "Ranger")
	require.NoError(t, err)

	proposed := worldstate.Document{worldstate.KeyPlayerHealth: -10}
	validation := h.ValidateStoryConsistency(proposed, RoleCharacter)
	require.False(t, validation.IsValid)

	result := sess.ResolveStoryConflicts(validation, proposed)
	require.Len(t, result.Resolved, 1)
	assert.Empty(t, result.Unresolved)
	assert.Equal(t, "story_conflict", result.Resolved[0].Conflict.Type)
}

// TestStatus verifies the session summary fields.
func TestStatus(t *testing.T) {
	sess, _, _ := newTestSession()
	ctx := context.Background()
	_, err := sess.StartNewGame(ctx, "Alice", "Ranger")
	require.NoError(t, err)

	_, err = sess.ProcessPlayerAction(ctx, RoleStory, "advance", worldstate.Document{
		worldstate.KeyStoryProgress: 25,
	})
	require.NoError(t, err)

	status := sess.Status()
	assert.Equal(t, "Alice", status.PlayerName)
	assert.Equal(t, "Ranger", status.PlayerClass)
	assert.Equal(t, StateBeginning, status.GameState)
	assert.Equal(t, float64(25), status.StoryProgress)
	assert.Equal(t, 2, status.ContextVersion)
	assert.Equal(t, 1, status.ChoicesMade)
}

// TestConcurrentActionsAndStatus verifies one session serves player
// actions and status reads from multiple goroutines.
func TestConcurrentActionsAndStatus(t *testing.T) {
	sess, _, _ := newTestSession()
	ctx := context.Background()
	_, err := sess.StartNewGame(ctx, "Alice", "Ranger")
	require.NoError(t, err)

	const workers = 4
	const actionsPerWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < actionsPerWorker; i++ {
				// Re-proposing the current progress is allowed, so
				// every action is accepted.
				_, err := sess.ProcessPlayerAction(ctx, RoleStory, "advance", worldstate.Document{
					worldstate.KeyStoryProgress: 50,
				})
				assert.NoError(t, err)
				sess.Status()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*actionsPerWorker, sess.Status().ChoicesMade)
}

// TestSaveLoadRoundTrip verifies a snapshot restores the world as a new
// version.
func TestSaveLoadRoundTrip(t *testing.T) {
	sess, store, _ := newTestSession()
	ctx := context.Background()
	_, err := sess.StartNewGame(ctx, "Alice", "Ranger")
	require.NoError(t, err)
	_, err = sess.ProcessPlayerAction(ctx, RoleStory, "advance", worldstate.Document{
		worldstate.KeyStoryProgress: 30,
	})
	require.NoError(t, err)
	require.Equal(t, 2, store.CurrentVersion())

	raw, err := sess.SaveState()
	require.NoError(t, err)

	// A different world; loading the snapshot brings the old state back.
	fresh, freshStore, _ := newTestSession()
	require.NoError(t, fresh.LoadState(ctx, raw))

	doc := freshStore.GetContext()
	assert.Equal(t, "Alice", doc[worldstate.KeyPlayerName])
	assert.Equal(t, float64(30), doc[worldstate.KeyStoryProgress], "JSON numbers decode as float64")
	assert.Equal(t, 1, freshStore.CurrentVersion(), "a load is one ordinary commit")

	assert.Error(t, fresh.LoadState(ctx, []byte("not json")))
}

// TestSaveState_SnapshotShape verifies the snapshot format version.
func TestSaveState_SnapshotShape(t *testing.T) {
	sess, _, _ := newTestSession()
	_, err := sess.StartNewGame(context.Background(), "Alice", "")
	require.NoError(t, err)

	raw, err := sess.SaveState()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version":"1.0"`)
}
