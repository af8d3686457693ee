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
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// ChangeEvent is one context commit pushed to websocket clients.
type ChangeEvent struct {
	Updates   worldstate.Document `json:"updates"`
	ChangedBy string              `json:"changed_by"`
}

// StreamChanges upgrades the connection and pushes every context commit
// to the client as JSON.
//
// # Description
//
// Each connection registers a store subscriber under a unique synthetic
// name, so its own writes (there are none) never echo. Commits are
// handed off through a buffered channel; when a slow client falls more
// than the buffer behind, newer events are dropped rather than stalling
// the commit path. Subscriptions are permanent in the store, so a
// closed connection flips a flag that turns its callback into a no-op.
func StreamChanges(store *worldstate.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		subscriber := "ws-" + uuid.NewString()
		events := make(chan ChangeEvent, 64)
		var closed atomic.Bool

		store.SubscribeToChanges(subscriber, func(updates worldstate.Document, changedBy string) {
			if closed.Load() {
				return
			}
			select {
			case events <- ChangeEvent{Updates: updates, ChangedBy: changedBy}:
			default:
				slog.Warn("websocket subscriber behind, dropping event", "subscriber", subscriber)
			}
		})
		slog.Info("websocket change stream connected", "subscriber", subscriber)

		// Reader goroutine: the client never sends payloads we care
		// about, but reading is how we learn about disconnects.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				closed.Store(true)
				slog.Info("websocket change stream disconnected", "subscriber", subscriber)
				return
			case event := <-events:
				if err := ws.WriteJSON(event); err != nil {
					closed.Store(true)
					slog.Info("websocket write failed, closing stream",
						"subscriber", subscriber, "error", err)
					return
				}
			}
		}
	}
}
