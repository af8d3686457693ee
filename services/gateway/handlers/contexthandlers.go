// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin handlers for the world core HTTP API.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/worldloom/services/consistency"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

// UpdateContextRequest is the commit payload.
type UpdateContextRequest struct {
	Updates   worldstate.Document `json:"updates" binding:"required"`
	ChangedBy string              `json:"changed_by" binding:"required"`
	Summary   string              `json:"summary"`
}

// GetContext returns the current document, optionally projected onto the
// comma-separated ?keys= list.
func GetContext(store *worldstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var keys []string
		if raw := c.Query("keys"); raw != "" {
			keys = strings.Split(raw, ",")
		}
		c.JSON(http.StatusOK, gin.H{
			"context": store.GetContext(keys...),
			"version": store.CurrentVersion(),
		})
	}
}

// UpdateContext commits a context change.
func UpdateContext(store *worldstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateContextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		version, err := store.UpdateContext(c.Request.Context(), req.Updates, req.ChangedBy, req.Summary)
		if err != nil {
			slog.Error("context update failed", "changed_by", req.ChangedBy, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update context"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"version": version})
	}
}

// GetVersionHistory returns the most recent versions (?limit=, default 10).
func GetVersionHistory(store *worldstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := intQuery(c, "limit", 10)
		c.JSON(http.StatusOK, gin.H{"versions": store.GetVersionHistory(limit)})
	}
}

// GetVersion returns one exact version snapshot.
func GetVersion(store *worldstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := strconv.Atoi(c.Param("version"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "version must be an integer"})
			return
		}
		v, ok := store.GetVersion(n)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// GetChangeLog returns the most recent change log entries (?limit=,
// default 20).
func GetChangeLog(store *worldstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := intQuery(c, "limit", 20)
		c.JSON(http.StatusOK, gin.H{"changes": store.GetChangeLog(limit)})
	}
}

// CheckConsistency runs the built-in structural check on the live
// document.
func CheckConsistency(store *worldstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.ValidateConsistency())
	}
}

// ValidateChanges runs the pluggable rule engine over a proposed change
// set without committing anything.
func ValidateChanges(validator *consistency.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var proposed worldstate.Document
		if err := c.ShouldBindJSON(&proposed); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, validator.ValidateChanges(proposed))
	}
}

// ResolveConflicts runs the registered resolvers over posted conflicts.
func ResolveConflicts(resolver *consistency.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var conflicts []consistency.Conflict
		if err := c.ShouldBindJSON(&conflicts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resolver.ResolveConflicts(conflicts))
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
