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

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast is the reserved recipient meaning "deliver to every
// registered agent, non-destructively".
const Broadcast = "broadcast"

// HubSender is the sender identity the hub uses for messages it
// originates itself (conversation invitations, reaper timeouts).
const HubSender = "communication_hub"

// MessageType is the closed set of message kinds agents exchange.
type MessageType string

const (
	TypeStoryUpdate          MessageType = "story_update"
	TypeCharacterChange      MessageType = "character_change"
	TypeLocationChange       MessageType = "location_change"
	TypeQuestUpdate          MessageType = "quest_update"
	TypeDialogueRequest      MessageType = "dialogue_request"
	TypeAudioCue             MessageType = "audio_cue"
	TypeContextSync          MessageType = "context_sync"
	TypeValidationRequest    MessageType = "validation_request"
	TypeErrorReport          MessageType = "error_report"
	TypeCollaborationRequest MessageType = "collaboration_request"
)

// ValidMessageTypes is the set of valid message kinds.
var ValidMessageTypes = map[MessageType]bool{
	TypeStoryUpdate:          true,
	TypeCharacterChange:      true,
	TypeLocationChange:       true,
	TypeQuestUpdate:          true,
	TypeDialogueRequest:      true,
	TypeAudioCue:             true,
	TypeContextSync:          true,
	TypeValidationRequest:    true,
	TypeErrorReport:          true,
	TypeCollaborationRequest: true,
}

// Priority orders message importance: low < medium < high < critical.
//
// Priority is informational metadata for consumers. The hub deliberately
// does NOT reorder delivery by priority; retrieval is queue (insertion)
// order, matching the reference design.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// AgentMessage is the unit of inter-agent communication.
//
// Lifecycle: created by a sender, queued by SendMessage, and for
// point-to-point messages marked Processed once the recipient retrieves
// it. Broadcast messages are never individually marked processed.
type AgentMessage struct {
	// ID is a unique message identifier.
	ID string `json:"id"`

	// Sender is the producing agent's name.
	Sender string `json:"sender"`

	// Recipient is an agent name or the Broadcast marker.
	Recipient string `json:"recipient"`

	// Type is the message kind.
	Type MessageType `json:"message_type"`

	// Content is arbitrary structured payload.
	Content map[string]any `json:"content"`

	// Timestamp is the creation time.
	Timestamp time.Time `json:"timestamp"`

	// Priority is informational; see Priority.
	Priority Priority `json:"priority"`

	// RequiresResponse marks the message as expecting a reply.
	RequiresResponse bool `json:"requires_response"`

	// ResponseDeadline is inert data unless a Reaper is running.
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`

	// Processed is set by the delivery path on retrieval.
	Processed bool `json:"processed"`

	// ResponseData optionally carries a reply payload.
	ResponseData map[string]any `json:"response_data,omitempty"`
}

// NewMessage builds a message with a fresh id, the current timestamp,
// and medium priority.
func NewMessage(sender, recipient string, msgType MessageType, content map[string]any) *AgentMessage {
	if content == nil {
		content = map[string]any{}
	}
	return &AgentMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Type:      msgType,
		Content:   content,
		Timestamp: time.Now(),
		Priority:  PriorityMedium,
	}
}

// HandlerFunc is an optional per-agent callback invoked synchronously
// when a point-to-point message addressed to the agent is sent.
type HandlerFunc func(msg *AgentMessage)

// AgentStatus is the lifecycle status of a registration.
type AgentStatus string

const (
	StatusActive   AgentStatus = "active"
	StatusInactive AgentStatus = "inactive"
)

// AgentRegistration tracks one registered agent's activity.
type AgentRegistration struct {
	Name             string      `json:"name"`
	RegisteredAt     time.Time   `json:"registered_at"`
	LastActive       time.Time   `json:"last_active"`
	Status           AgentStatus `json:"status"`
	MessagesSent     int         `json:"messages_sent"`
	MessagesReceived int         `json:"messages_received"`
}

// ConversationStatus is the lifecycle status of a conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// ConversationMessage is one post within a conversation.
type ConversationMessage struct {
	Sender    string         `json:"sender"`
	Content   map[string]any `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

// Conversation is a multi-agent exchange around a topic.
type Conversation struct {
	ID           string                `json:"id"`
	Initiator    string                `json:"initiator"`
	Participants []string              `json:"participants"`
	Topic        string                `json:"topic"`
	StartedAt    time.Time             `json:"started_at"`
	Messages     []ConversationMessage `json:"messages"`
	Status       ConversationStatus    `json:"status"`
}

// Statistics is the aggregate hub view.
type Statistics struct {
	TotalAgents         int                          `json:"total_agents"`
	TotalMessages       int                          `json:"total_messages"`
	ActiveConversations int                          `json:"active_conversations"`
	AgentDetails        map[string]AgentRegistration `json:"agent_details"`
}

// StoryValidation is the result of the hub's domain-specific semantic
// checks on proposed story changes. Warnings alone do not invalidate.
type StoryValidation struct {
	IsValid     bool      `json:"is_valid"`
	Conflicts   []string  `json:"conflicts"`
	Warnings    []string  `json:"warnings"`
	ValidatedBy string    `json:"validated_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// HubConfig configures queue retention and handler protection.
type HubConfig struct {
	// QueueLimit caps the retained message queue. When the cap is reached
	// the oldest messages are evicted (explicit lossy retention). A value
	// <= 0 keeps everything, matching the reference design.
	QueueLimit int

	// CollaborationDeadline is the response window attached to
	// collaboration requests.
	CollaborationDeadline time.Duration

	// BreakerThreshold is the consecutive handler failure count that
	// opens an agent's handler circuit. <= 0 disables the breaker.
	BreakerThreshold int

	// BreakerCooldown is how long an open handler circuit stays open.
	BreakerCooldown time.Duration
}

// DefaultHubConfig returns the reference behavior plus a conservative
// handler breaker.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		QueueLimit:            0,
		CollaborationDeadline: 5 * time.Minute,
		BreakerThreshold:      5,
		BreakerCooldown:       60 * time.Second,
	}
}
