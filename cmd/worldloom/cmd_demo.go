// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/worldloom/services/consistency"
	"github.com/AleutianAI/worldloom/services/hub"
	"github.com/AleutianAI/worldloom/services/session"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

// runDemo walks the core through one multi-agent exchange and prints
// what happened. Useful as a smoke check and as living documentation.
func runDemo(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	store := worldstate.NewStore()
	agentHub := hub.NewHub(store)
	validator := consistency.NewValidator(store)
	resolver := consistency.NewResolver()
	sess := session.New(store, agentHub, validator, resolver)

	if _, err := sess.StartNewGame(ctx, "Alice", "Ranger"); err != nil {
		log.Fatalf("Failed to start demo game: %v", err)
	}
	fmt.Println("Started a new game for Alice the Ranger.")

	// The story generator advances the plot.
	result, err := sess.ProcessPlayerAction(ctx, session.RoleStory, "enter the Whispering Woods", worldstate.Document{
		worldstate.KeyCurrentLocation: "Whispering Woods",
		worldstate.KeyStoryProgress:   10,
	})
	if err != nil {
		log.Fatalf("Failed to process action: %v", err)
	}
	fmt.Printf("Moved to the Whispering Woods (accepted=%v, version=%d).\n", result.Accepted, result.Version)

	// A suspicious proposal: big unexplained heal plus a story rewind.
	result, err = sess.ProcessPlayerAction(ctx, session.RoleCharacter, "drink a mystery potion", worldstate.Document{
		worldstate.KeyPlayerHealth:  200,
		worldstate.KeyStoryProgress: 5,
	})
	if err != nil {
		log.Fatalf("Failed to process action: %v", err)
	}
	fmt.Printf("Mystery potion rejected as expected (accepted=%v):\n", result.Accepted)
	for _, conflict := range result.Story.Conflicts {
		fmt.Println("  conflict:", conflict)
	}

	// Direct agent-to-agent messaging.
	msg := hub.NewMessage(session.RoleStory, session.RoleAudio, hub.TypeAudioCue, map[string]any{
		"cue": "forest_ambience",
	})
	agentHub.SendMessage(ctx, msg)
	pending := agentHub.MessagesFor(session.RoleAudio)
	fmt.Printf("Audio director received %d message(s).\n", len(pending))

	// A conversation between three producers.
	convID := agentHub.StartConversation(ctx, session.RoleStory,
		[]string{session.RoleStory, session.RoleQuest, session.RoleDialogue}, "ambush at the old bridge")
	agentHub.AddToConversation(ctx, convID, session.RoleQuest, map[string]any{
		"note": "tie the ambush to the missing caravan quest",
	})
	conversation, _ := agentHub.GetConversation(convID)
	fmt.Printf("Conversation %q has %d post(s).\n", conversation.Topic, len(conversation.Messages))

	stats := agentHub.AgentStatistics()
	fmt.Printf("Hub totals: %d agents, %d messages, %d active conversation(s).\n",
		stats.TotalAgents, stats.TotalMessages, stats.ActiveConversations)

	status := sess.Status()
	fmt.Printf("Game status: state=%s location=%q progress=%.0f version=%d\n",
		status.GameState, status.Location, status.StoryProgress, status.ContextVersion)
}
