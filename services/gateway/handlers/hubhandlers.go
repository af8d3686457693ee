// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/worldloom/services/hub"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

// RegisterAgentRequest names the agent to register.
type RegisterAgentRequest struct {
	Name string `json:"name" binding:"required"`
}

// SendMessageRequest is the message submission payload.
type SendMessageRequest struct {
	Sender           string          `json:"sender" binding:"required"`
	Recipient        string          `json:"recipient" binding:"required"`
	Type             hub.MessageType `json:"message_type" binding:"required"`
	Content          map[string]any  `json:"content"`
	Priority         hub.Priority    `json:"priority"`
	RequiresResponse bool            `json:"requires_response"`
}

// StartConversationRequest opens a multi-agent conversation.
type StartConversationRequest struct {
	Initiator    string   `json:"initiator" binding:"required"`
	Participants []string `json:"participants" binding:"required"`
	Topic        string   `json:"topic"`
}

// ConversationPostRequest appends one post to a conversation.
type ConversationPostRequest struct {
	Sender  string         `json:"sender" binding:"required"`
	Content map[string]any `json:"content" binding:"required"`
}

// CollaborationRequest solicits responses from several agents.
type CollaborationRequest struct {
	Requester string         `json:"requester" binding:"required"`
	Targets   []string       `json:"targets" binding:"required"`
	Task      string         `json:"task" binding:"required"`
	Context   map[string]any `json:"context"`
}

// StoryValidationRequest checks proposed changes against game policy.
type StoryValidationRequest struct {
	Agent   string              `json:"agent" binding:"required"`
	Changes worldstate.Document `json:"changes" binding:"required"`
}

// RegisterAgent registers an agent on the hub.
func RegisterAgent(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterAgentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.RegisterAgent(req.Name)
		c.JSON(http.StatusOK, gin.H{"status": "registered", "agent": req.Name})
	}
}

// SendMessage queues a message; validation failures are a 422, not an
// internal error.
func SendMessage(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !hub.ValidMessageTypes[req.Type] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
			return
		}

		msg := hub.NewMessage(req.Sender, req.Recipient, req.Type, req.Content)
		if req.Priority != 0 {
			msg.Priority = req.Priority
		}
		msg.RequiresResponse = req.RequiresResponse

		if !h.SendMessage(c.Request.Context(), msg) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "message rejected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": msg.ID})
	}
}

// GetMessages drains the pending messages for an agent, optionally
// filtered by the comma-separated ?types= list.
func GetMessages(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		var kinds []hub.MessageType
		if raw := c.Query("types"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				kinds = append(kinds, hub.MessageType(t))
			}
		}
		c.JSON(http.StatusOK, gin.H{"messages": h.MessagesFor(name, kinds...)})
	}
}

// StartConversation opens a conversation and invites the participants.
func StartConversation(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id := h.StartConversation(c.Request.Context(), req.Initiator, req.Participants, req.Topic)
		c.JSON(http.StatusOK, gin.H{"conversation_id": id})
	}
}

// GetConversation returns one conversation transcript.
func GetConversation(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversation, ok := h.GetConversation(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusOK, conversation)
	}
}

// PostToConversation appends a message to a conversation.
func PostToConversation(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConversationPostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !h.AddToConversation(c.Request.Context(), c.Param("id"), req.Sender, req.Content) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "post rejected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "posted"})
	}
}

// RequestCollaboration fans a collaboration request out to the targets.
func RequestCollaboration(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CollaborationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Info("collaboration requested over HTTP", "requester", req.Requester, "targets", len(req.Targets))
		accepted := h.RequestCollaboration(c.Request.Context(), req.Requester, req.Targets, req.Task, req.Context)
		c.JSON(http.StatusOK, gin.H{"accepted": accepted})
	}
}

// ValidateStory runs the hub's semantic story checks.
func ValidateStory(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StoryValidationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, h.ValidateStoryConsistency(req.Changes, req.Agent))
	}
}

// GetStatistics returns the aggregate hub view.
func GetStatistics(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.AgentStatistics())
	}
}
