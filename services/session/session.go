// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session orchestrates the world core for one game.
//
// # Description
//
// A Session wires the shared context store, the message hub, and the
// consistency engine together, registers the standard producer roles,
// and exposes game-level operations (start, player action, status,
// save/load). The session is agnostic to what drives the producers —
// they are names on the hub, nothing more.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/worldloom/services/consistency"
	"github.com/AleutianAI/worldloom/services/hub"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

// The standard producer roles of a living game world.
const (
	RoleStory     = "story_generator"
	RoleCharacter = "character_behavior"
	RoleWorld     = "world_builder"
	RoleQuest     = "quest_master"
	RoleAudio     = "audio_director"
	RoleDialogue  = "dialogue_writer"

	// systemProducer commits session-level context changes.
	systemProducer = "system"
)

// Roles lists every standard producer role.
var Roles = []string{RoleStory, RoleCharacter, RoleWorld, RoleQuest, RoleAudio, RoleDialogue}

// Game states tracked in the shared context under game_state.
const (
	StateInitializing = "initializing"
	StateBeginning    = "beginning"
	StateExploring    = "exploring"
	StateEnding       = "ending"
)

// saveVersion tags the snapshot format.
const saveVersion = "1.0"

// ActionResult is the outcome of one player action.
type ActionResult struct {
	Accepted bool `json:"accepted"`

	// Validation carries rule-engine violations when the action's
	// proposed changes were rejected.
	Validation consistency.ValidationResult `json:"validation"`

	// Story carries the hub's semantic check result.
	Story hub.StoryValidation `json:"story"`

	// Version is the context version the action committed, 0 if none.
	Version int `json:"version"`
}

// Status is the session-level game summary.
type Status struct {
	GameState       string    `json:"game_state"`
	PlayerName      string    `json:"player_name"`
	PlayerClass     string    `json:"player_class"`
	Location        string    `json:"location"`
	StoryProgress   float64   `json:"story_progress"`
	ContextVersion  int       `json:"context_version"`
	SessionStart    time.Time `json:"session_start"`
	SessionDuration float64   `json:"session_duration_seconds"`
	ChoicesMade     int       `json:"choices_made"`
}

// Snapshot is the serializable save-game format.
type Snapshot struct {
	Context   worldstate.Document `json:"context"`
	Timestamp time.Time           `json:"timestamp"`
	Version   string              `json:"version"`
}

// Session orchestrates one running game.
//
// # Thread Safety
//
// Safe for concurrent use. The store, hub, and validator carry their
// own locks; the session mutex guards only the session-local counters.
type Session struct {
	store     *worldstate.Store
	hub       *hub.Hub
	validator *consistency.Validator
	resolver  *consistency.Resolver

	mu          sync.Mutex
	started     time.Time
	choicesMade int

	logger *slog.Logger
}

// New wires a Session over an existing core, registering all standard
// roles on the hub.
func New(store *worldstate.Store, h *hub.Hub, validator *consistency.Validator, resolver *consistency.Resolver) *Session {
	s := &Session{
		store:     store,
		hub:       h,
		validator: validator,
		resolver:  resolver,
		started:   time.Now(),
		logger:    slog.Default().With("component", "session"),
	}
	for _, role := range Roles {
		h.RegisterAgent(role)
	}
	h.RegisterAgent(systemProducer)
	return s
}

// StartNewGame seeds the shared context for a fresh session.
func (s *Session) StartNewGame(ctx context.Context, playerName, playerClass string) (int, error) {
	if playerClass == "" {
		playerClass = "Adventurer"
	}
	s.mu.Lock()
	s.started = time.Now()
	s.choicesMade = 0
	s.mu.Unlock()

	version, err := s.store.UpdateContext(ctx, worldstate.Document{
		worldstate.KeyPlayerName:      playerName,
		"player_class":                playerClass,
		worldstate.KeyPlayerHealth:    100,
		worldstate.KeyCurrentLocation: "Starting Area",
		worldstate.KeyStoryProgress:   0,
		worldstate.KeyGameState:       StateBeginning,
	}, systemProducer, "New game started")
	if err != nil {
		return 0, fmt.Errorf("seeding game context: %w", err)
	}

	s.logger.Info("started new game", "player", playerName, "class", playerClass, "version", version)
	return version, nil
}

// ProcessPlayerAction validates and commits the context changes a player
// action proposes.
//
// # Description
//
// Runs the generic rule engine and the hub's story-consistency checks
// over proposedChanges. Both must pass (warnings are fine) for the
// commit to happen; on acceptance the change is committed on behalf of
// actor and a context_sync broadcast announces it to all agents.
// Rejection is a result, not an error.
func (s *Session) ProcessPlayerAction(ctx context.Context, actor, action string, proposedChanges worldstate.Document) (ActionResult, error) {
	result := ActionResult{
		Validation: s.validator.ValidateChanges(proposedChanges),
		Story:      s.hub.ValidateStoryConsistency(proposedChanges, actor),
	}
	if !result.Validation.IsValid || !result.Story.IsValid {
		s.logger.Warn("player action rejected",
			"actor", actor,
			"violations", len(result.Validation.Violations),
			"conflicts", len(result.Story.Conflicts))
		return result, nil
	}

	version, err := s.store.UpdateContext(ctx, proposedChanges, actor, "Player action: "+action)
	if err != nil {
		return result, fmt.Errorf("committing player action: %w", err)
	}

	s.mu.Lock()
	s.choicesMade++
	s.mu.Unlock()
	result.Accepted = true
	result.Version = version

	sync := hub.NewMessage(actor, hub.Broadcast, hub.TypeContextSync, map[string]any{
		"action":  action,
		"version": version,
	})
	s.hub.SendMessage(ctx, sync)

	return result, nil
}

// ResolveStoryConflicts runs the registered conflict resolvers over a
// failed story validation.
//
// # Description
//
// Each conflict string becomes a Conflict of type "story_conflict" with
// the rejected changes attached as context. Callers inspect the result
// and decide whether to retry the action; the session never auto-commits
// a resolution.
func (s *Session) ResolveStoryConflicts(validation hub.StoryValidation, proposed worldstate.Document) consistency.ResolveResult {
	conflicts := make([]consistency.Conflict, 0, len(validation.Conflicts))
	for _, detail := range validation.Conflicts {
		conflicts = append(conflicts, consistency.Conflict{
			Type:    "story_conflict",
			Detail:  detail,
			Context: proposed,
		})
	}
	return s.resolver.ResolveConflicts(conflicts)
}

// Status summarizes the current game.
func (s *Session) Status() Status {
	s.mu.Lock()
	started := s.started
	choicesMade := s.choicesMade
	s.mu.Unlock()

	doc := s.store.GetContext()
	return Status{
		GameState:       stringFrom(doc, worldstate.KeyGameState),
		PlayerName:      stringFrom(doc, worldstate.KeyPlayerName),
		PlayerClass:     stringFrom(doc, "player_class"),
		Location:        stringFrom(doc, worldstate.KeyCurrentLocation),
		StoryProgress:   floatFrom(doc, worldstate.KeyStoryProgress),
		ContextVersion:  s.store.CurrentVersion(),
		SessionStart:    started,
		SessionDuration: time.Since(started).Seconds(),
		ChoicesMade:     choicesMade,
	}
}

// SaveState serializes the current context as a snapshot.
func (s *Session) SaveState() ([]byte, error) {
	snapshot := Snapshot{
		Context:   s.store.GetContext(),
		Timestamp: time.Now(),
		Version:   saveVersion,
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return raw, nil
}

// LoadState commits a saved snapshot's context wholesale as a new
// version (the version history is never rewritten by a load).
func (s *Session) LoadState(ctx context.Context, raw []byte) error {
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	if _, err := s.store.UpdateContext(ctx, snapshot.Context, systemProducer, "Game state loaded"); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	s.logger.Info("game state loaded", "saved_at", snapshot.Timestamp)
	return nil
}

func stringFrom(doc worldstate.Document, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func floatFrom(doc worldstate.Document, key string) float64 {
	switch n := doc[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
