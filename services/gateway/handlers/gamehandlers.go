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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/worldloom/services/session"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

// NewGameRequest starts a fresh game session.
type NewGameRequest struct {
	PlayerName  string `json:"player_name" binding:"required"`
	PlayerClass string `json:"player_class"`
}

// PlayerActionRequest submits one player action.
type PlayerActionRequest struct {
	Actor   string              `json:"actor" binding:"required"`
	Action  string              `json:"action" binding:"required"`
	Changes worldstate.Document `json:"changes" binding:"required"`
}

// NewGame seeds the shared context for a new session.
func NewGame(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NewGameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		version, err := s.StartNewGame(c.Request.Context(), req.PlayerName, req.PlayerClass)
		if err != nil {
			slog.Error("failed to start new game", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start new game"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": version})
	}
}

// PlayerAction validates and commits one player action. Rejections are
// a 200 with accepted=false; the validation detail is the point.
func PlayerAction(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PlayerActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := s.ProcessPlayerAction(c.Request.Context(), req.Actor, req.Action, req.Changes)
		if err != nil {
			slog.Error("failed to process player action", "actor", req.Actor, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process action"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// GameStatus returns the session summary.
func GameStatus(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Status())
	}
}

// SaveGame returns a save-game snapshot.
func SaveGame(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := s.SaveState()
		if err != nil {
			slog.Error("failed to serialize game state", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save game"})
			return
		}
		c.Data(http.StatusOK, "application/json", raw)
	}
}

// LoadGame restores a previously saved snapshot.
func LoadGame(s *session.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.LoadState(c.Request.Context(), raw); err != nil {
			slog.Error("failed to load game state", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "loaded"})
	}
}
