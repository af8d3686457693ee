// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hub implements the message routing layer between named agents.
//
// # Description
//
// The Hub routes typed, prioritized messages point-to-point or broadcast,
// tracks per-agent delivery and read state, and supports multi-party
// conversations and one-shot collaboration requests with response
// deadlines. It reads the shared context store for its story-consistency
// checks but never writes it.
//
// Delivery semantics, both deliberate and documented:
//
//   - Retrieval is queue (insertion) order. Priority is metadata only.
//   - Broadcast messages are never marked processed: every registered
//     agent sees each broadcast on every poll until the queue evicts it
//     (at-least-once broadcast delivery).
//   - ResponseDeadline is inert data unless a Reaper is running.
//
// # Thread Safety
//
// All Hub methods are safe for concurrent use; a single per-instance
// mutex serializes mutations.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/worldloom/pkg/ringbuf"
	"github.com/AleutianAI/worldloom/services/observability"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

const tracerName = "worldloom/hub"

// ContextReader is the read-only store slice the hub needs for story
// validation. *worldstate.Store satisfies it.
type ContextReader interface {
	GetContext(keys ...string) worldstate.Document
}

// Hub is the central agent communication switchboard.
type Hub struct {
	mu sync.Mutex

	store         ContextReader
	queue         *ringbuf.Ring[*AgentMessage]
	handlers      map[string][]HandlerFunc
	breakers      map[string]*circuitBreaker
	conversations map[string]*Conversation
	agents        map[string]*AgentRegistration

	// totalQueued counts every message ever accepted, surviving queue
	// eviction.
	totalQueued int

	config HubConfig
	logger *slog.Logger
}

// NewHub creates a Hub with the reference configuration.
//
// # Inputs
//
//   - store: Shared context store, read for story validation. Must not
//     be nil.
func NewHub(store ContextReader) *Hub {
	return NewHubWithConfig(store, DefaultHubConfig())
}

// NewHubWithConfig creates a Hub with explicit retention and breaker
// settings.
func NewHubWithConfig(store ContextReader, config HubConfig) *Hub {
	if config.CollaborationDeadline <= 0 {
		config.CollaborationDeadline = 5 * time.Minute
	}
	h := &Hub{
		store:         store,
		queue:         ringbuf.New[*AgentMessage](config.QueueLimit),
		handlers:      make(map[string][]HandlerFunc),
		breakers:      make(map[string]*circuitBreaker),
		conversations: make(map[string]*Conversation),
		agents:        make(map[string]*AgentRegistration),
		config:        config,
		logger:        slog.Default().With("component", "hub"),
	}
	h.logger.Info("initialized agent communication hub", "queue_limit", config.QueueLimit)
	return h
}

// RegisterAgent registers an agent, optionally with message handlers.
//
// # Description
//
// Handlers are invoked synchronously whenever a point-to-point message
// addressed to this agent is sent (immediate dispatch; polling via
// MessagesFor works regardless). Re-registering keeps existing stats and
// appends any new handlers.
func (h *Hub) RegisterAgent(name string, handlers ...HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.agents[name]; !exists {
		now := time.Now()
		h.agents[name] = &AgentRegistration{
			Name:         name,
			RegisteredAt: now,
			LastActive:   now,
			Status:       StatusActive,
		}
		observability.AgentRegistered()
	}
	h.handlers[name] = append(h.handlers[name], handlers...)

	h.logger.Info("registered agent", "agent", name, "handlers", len(h.handlers[name]))
}

// SendMessage queues a message for delivery.
//
// # Description
//
// Validates that the sender is registered (or is the hub itself) and the
// recipient is registered or Broadcast; validation failures return false
// and queue nothing — this method never panics for expected failures.
// On success the message is queued, sender stats update, and for
// point-to-point messages any registered handlers for the recipient run
// immediately (fire-and-forget: handler panics are recovered and logged,
// delivery still counts as successful).
//
// # Inputs
//
//   - ctx: Carries the trace span only.
//   - msg: The message. Must not be nil.
//
// # Outputs
//
//   - bool: True when the message was accepted.
func (h *Hub) SendMessage(ctx context.Context, msg *AgentMessage) bool {
	_, span := otel.Tracer(tracerName).Start(ctx, "hub.SendMessage")
	defer span.End()

	if msg == nil {
		return false
	}
	span.SetAttributes(
		attribute.String("message.type", string(msg.Type)),
		attribute.String("message.recipient", msg.Recipient),
	)

	h.mu.Lock()
	defer h.mu.Unlock()

	accepted := h.sendLocked(msg)
	observability.RecordMessage(string(msg.Type), accepted)
	return accepted
}

// sendLocked is the validation + queue + dispatch path. Caller holds mu.
func (h *Hub) sendLocked(msg *AgentMessage) bool {
	if _, ok := h.agents[msg.Sender]; !ok && msg.Sender != HubSender {
		h.logger.Warn("rejected message from unknown sender", "sender", msg.Sender)
		return false
	}
	if _, ok := h.agents[msg.Recipient]; !ok && msg.Recipient != Broadcast {
		h.logger.Warn("rejected message to unknown recipient", "recipient", msg.Recipient)
		return false
	}

	h.queue.Append(msg)
	h.totalQueued++

	if sender, ok := h.agents[msg.Sender]; ok {
		sender.MessagesSent++
		sender.LastActive = time.Now()
	}

	if msg.Recipient != Broadcast {
		h.dispatchLocked(msg)
	}

	h.logger.Debug("message queued",
		"id", msg.ID, "sender", msg.Sender, "recipient", msg.Recipient, "type", msg.Type)
	return true
}

// dispatchLocked runs the recipient's handlers under its circuit breaker.
func (h *Hub) dispatchLocked(msg *AgentMessage) {
	handlers := h.handlers[msg.Recipient]
	if len(handlers) == 0 {
		return
	}

	breaker, ok := h.breakers[msg.Recipient]
	if !ok {
		breaker = newCircuitBreaker(h.config.BreakerThreshold, h.config.BreakerCooldown)
		h.breakers[msg.Recipient] = breaker
	}
	if !breaker.Allow() {
		h.logger.Warn("handler circuit open, skipping dispatch", "agent", msg.Recipient)
		return
	}

	failed := false
	for _, handler := range handlers {
		if !h.invokeHandler(handler, msg) {
			failed = true
		}
	}
	if failed {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}
}

// invokeHandler runs one handler, recovering panics. Returns false on
// panic.
func (h *Hub) invokeHandler(handler HandlerFunc, msg *AgentMessage) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("message handler panicked",
				"recipient", msg.Recipient, "message_id", msg.ID, "panic", r)
			ok = false
		}
	}()
	handler(msg)
	return true
}

// MessagesFor returns the pending messages for an agent.
//
// # Description
//
// Returns every unprocessed message addressed to the agent or to
// Broadcast, in queue order, optionally filtered by kind. Returned
// point-to-point messages are marked processed and count toward the
// agent's received total; broadcast messages are never marked processed
// and will be seen again on the next poll (at-least-once broadcast
// delivery, by design).
func (h *Hub) MessagesFor(name string, kinds ...MessageType) []AgentMessage {
	kindFilter := make(map[MessageType]bool, len(kinds))
	for _, k := range kinds {
		kindFilter[k] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	agent := h.agents[name]
	out := []AgentMessage{}

	h.queue.ForEach(func(msg *AgentMessage) bool {
		if msg.Processed {
			return true
		}
		if msg.Recipient != name && msg.Recipient != Broadcast {
			return true
		}
		if len(kindFilter) > 0 && !kindFilter[msg.Type] {
			return true
		}

		if msg.Recipient != Broadcast {
			msg.Processed = true
			if agent != nil {
				agent.MessagesReceived++
				agent.LastActive = time.Now()
			}
		}
		out = append(out, *msg)
		return true
	})

	observability.RecordDelivery(name, len(out))
	return out
}

// StartConversation creates a multi-agent conversation.
//
// # Description
//
// Creates the Conversation record and sends one high-priority
// collaboration_request invitation (carrying the conversation id) to
// every participant except the initiator.
//
// # Outputs
//
//   - string: The conversation id.
func (h *Hub) StartConversation(ctx context.Context, initiator string, participants []string, topic string) string {
	conversationID := uuid.NewString()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.conversations[conversationID] = &Conversation{
		ID:           conversationID,
		Initiator:    initiator,
		Participants: append([]string(nil), participants...),
		Topic:        topic,
		StartedAt:    time.Now(),
		Messages:     []ConversationMessage{},
		Status:       ConversationActive,
	}

	for _, participant := range participants {
		if participant == initiator {
			continue
		}
		invite := NewMessage(HubSender, participant, TypeCollaborationRequest, map[string]any{
			"conversation_id": conversationID,
			"initiator":       initiator,
			"topic":           topic,
			"participants":    participants,
		})
		invite.Priority = PriorityHigh
		h.sendLocked(invite)
	}

	h.logger.Info("started conversation",
		"conversation_id", conversationID, "topic", topic, "participants", len(participants))
	return conversationID
}

// AddToConversation appends a message to an active conversation.
//
// # Description
//
// Rejects (returns false) when the conversation is unknown or the sender
// is not a participant. Otherwise the post is recorded and a
// collaboration_request notification fans out to every other
// participant.
func (h *Hub) AddToConversation(ctx context.Context, conversationID, sender string, content map[string]any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversation, ok := h.conversations[conversationID]
	if !ok {
		h.logger.Warn("unknown conversation", "conversation_id", conversationID)
		return false
	}

	participant := false
	for _, p := range conversation.Participants {
		if p == sender {
			participant = true
			break
		}
	}
	if !participant {
		h.logger.Warn("sender not in conversation",
			"conversation_id", conversationID, "sender", sender)
		return false
	}

	conversation.Messages = append(conversation.Messages, ConversationMessage{
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now(),
	})

	for _, p := range conversation.Participants {
		if p == sender {
			continue
		}
		notify := NewMessage(sender, p, TypeCollaborationRequest, map[string]any{
			"conversation_id": conversationID,
			"message":         content,
			"from":            sender,
		})
		h.sendLocked(notify)
	}

	return true
}

// GetConversation returns a copy of a conversation.
func (h *Hub) GetConversation(conversationID string) (Conversation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversation, ok := h.conversations[conversationID]
	if !ok {
		return Conversation{}, false
	}

	out := *conversation
	out.Participants = append([]string(nil), conversation.Participants...)
	out.Messages = append([]ConversationMessage(nil), conversation.Messages...)
	return out, true
}

// RequestCollaboration solicits responses from multiple agents.
//
// # Description
//
// Sends each target a high-priority, response-required
// collaboration_request sharing one collaboration id, with a response
// deadline a fixed offset from now (HubConfig.CollaborationDeadline).
//
// # Outputs
//
//   - []string: The targets for which delivery succeeded.
func (h *Hub) RequestCollaboration(ctx context.Context, requester string, targets []string, taskDescription string, taskContext map[string]any) []string {
	collaborationID := uuid.NewString()
	deadline := time.Now().Add(h.config.CollaborationDeadline)

	h.mu.Lock()
	defer h.mu.Unlock()

	accepted := []string{}
	for _, target := range targets {
		msg := NewMessage(requester, target, TypeCollaborationRequest, map[string]any{
			"collaboration_id": collaborationID,
			"task":             taskDescription,
			"context":          taskContext,
			"deadline":         deadline,
		})
		msg.Priority = PriorityHigh
		msg.RequiresResponse = true
		msg.ResponseDeadline = &deadline

		if h.sendLocked(msg) {
			accepted = append(accepted, target)
		}
	}

	h.logger.Info("collaboration requested",
		"collaboration_id", collaborationID, "requester", requester, "accepted", len(accepted))
	return accepted
}

// ValidateStoryConsistency checks proposed changes against game policy.
//
// # Description
//
// Domain-specific semantic checks, distinct from the generic rule engine
// in services/consistency:
//
//   - location change to the identical current location: warning only
//   - health increase of more than 50 over current without a
//     "justification" entry in the proposal: conflict
//   - negative health: conflict
//   - story progress decreasing: conflict (progress is monotonically
//     non-decreasing)
//
// Warnings alone do not invalidate the proposal.
func (h *Hub) ValidateStoryConsistency(proposed worldstate.Document, requestingAgent string) StoryValidation {
	current := h.store.GetContext()

	conflicts := []string{}
	warnings := []string{}

	if raw, ok := proposed[worldstate.KeyCurrentLocation]; ok {
		if newLocation, isString := raw.(string); isString {
			if currentLocation, _ := current[worldstate.KeyCurrentLocation].(string); newLocation == currentLocation {
				warnings = append(warnings, "Location change to same location")
			}
		}
	}

	if raw, ok := proposed[worldstate.KeyPlayerHealth]; ok {
		newHealth, numeric := toNumber(raw)
		currentHealth := numberFrom(current, worldstate.KeyPlayerHealth, 100)

		if numeric {
			_, justified := proposed["justification"]
			if newHealth > currentHealth+50 && !justified {
				conflicts = append(conflicts, "Excessive health increase without explanation")
			}
			if newHealth < 0 {
				conflicts = append(conflicts, "Player health cannot be negative")
			}
		}
	}

	if raw, ok := proposed[worldstate.KeyStoryProgress]; ok {
		newProgress, numeric := toNumber(raw)
		currentProgress := numberFrom(current, worldstate.KeyStoryProgress, 0)

		if numeric && newProgress < currentProgress {
			conflicts = append(conflicts, "Story progress cannot go backwards")
		}
	}

	observability.RecordConflicts(requestingAgent, len(conflicts))

	return StoryValidation{
		IsValid:     len(conflicts) == 0,
		Conflicts:   conflicts,
		Warnings:    warnings,
		ValidatedBy: HubSender,
		Timestamp:   time.Now(),
	}
}

// AgentStatistics returns the aggregate hub view.
//
// TotalMessages counts every message ever accepted, including messages
// since evicted by queue retention.
func (h *Hub) AgentStatistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	active := 0
	for _, c := range h.conversations {
		if c.Status == ConversationActive {
			active++
		}
	}

	details := make(map[string]AgentRegistration, len(h.agents))
	for name, reg := range h.agents {
		details[name] = *reg
	}

	return Statistics{
		TotalAgents:         len(h.agents),
		TotalMessages:       h.totalQueued,
		ActiveConversations: active,
		AgentDetails:        details,
	}
}

// overdueMessages returns unprocessed response-required messages whose
// deadline has passed. Used by the Reaper.
func (h *Hub) overdueMessages(now time.Time) []*AgentMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	overdue := []*AgentMessage{}
	h.queue.ForEach(func(msg *AgentMessage) bool {
		if msg.Processed || !msg.RequiresResponse || msg.ResponseDeadline == nil {
			return true
		}
		if now.After(*msg.ResponseDeadline) {
			overdue = append(overdue, msg)
		}
		return true
	})
	return overdue
}

// toNumber converts a document value to float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// numberFrom reads a numeric key with a fallback.
func numberFrom(doc worldstate.Document, key string, fallback float64) float64 {
	if raw, ok := doc[key]; ok {
		if n, numeric := toNumber(raw); numeric {
			return n
		}
	}
	return fallback
}
