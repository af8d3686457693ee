// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/worldloom/services/consistency"
	"github.com/AleutianAI/worldloom/services/gateway/handlers"
	"github.com/AleutianAI/worldloom/services/hub"
	"github.com/AleutianAI/worldloom/services/session"
	"github.com/AleutianAI/worldloom/services/worldstate"
)

func SetupRoutes(router *gin.Engine, store *worldstate.Store, h *hub.Hub,
	validator *consistency.Validator, resolver *consistency.Resolver, sess *session.Session) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		// Shared context routes
		ctxGroup := v1.Group("/context")
		{
			ctxGroup.GET("", handlers.GetContext(store))
			ctxGroup.POST("", handlers.UpdateContext(store))
			ctxGroup.GET("/versions", handlers.GetVersionHistory(store))
			ctxGroup.GET("/versions/:version", handlers.GetVersion(store))
			ctxGroup.GET("/changelog", handlers.GetChangeLog(store))
			ctxGroup.GET("/consistency", handlers.CheckConsistency(store))
			ctxGroup.GET("/ws", handlers.StreamChanges(store))
		}

		v1.POST("/validate", handlers.ValidateChanges(validator))
		v1.POST("/resolve", handlers.ResolveConflicts(resolver))
		v1.POST("/story/validate", handlers.ValidateStory(h))

		// Agent communication routes
		v1.POST("/agents", handlers.RegisterAgent(h))
		v1.GET("/agents/:name/messages", handlers.GetMessages(h))
		v1.POST("/messages", handlers.SendMessage(h))
		v1.POST("/conversations", handlers.StartConversation(h))
		v1.GET("/conversations/:id", handlers.GetConversation(h))
		v1.POST("/conversations/:id/messages", handlers.PostToConversation(h))
		v1.POST("/collaborations", handlers.RequestCollaboration(h))
		v1.GET("/stats", handlers.GetStatistics(h))

		// Game session routes
		game := v1.Group("/game")
		{
			game.POST("/new", handlers.NewGame(sess))
			game.POST("/action", handlers.PlayerAction(sess))
			game.GET("/status", handlers.GameStatus(sess))
			game.GET("/save", handlers.SaveGame(sess))
			game.POST("/load", handlers.LoadGame(sess))
		}
	}
}
