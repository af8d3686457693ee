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
	"context"
	"log/slog"
	"time"
)

// Reaper expires overdue collaboration requests.
//
// # Description
//
// ResponseDeadline is pure data to the Hub itself. A Reaper, when
// started, scans the queue on an interval for unprocessed,
// response-required messages whose deadline has passed, marks each as
// processed so it is never delivered late, and emits a synthetic
// error_report timeout message back to the original sender. Running a
// Reaper is optional; without one the reference behavior (deadlines
// inert) is preserved.
//
// # Thread Safety
//
// Safe for concurrent use with all Hub operations.
type Reaper struct {
	hub      *Hub
	interval time.Duration
	logger   *slog.Logger
}

// NewReaper creates a Reaper. interval <= 0 defaults to 30 seconds.
func NewReaper(h *Hub, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reaper{
		hub:      h,
		interval: interval,
		logger:   slog.Default().With("component", "reaper"),
	}
}

// Run scans until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return ctx.Err()
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep performs one expiration pass.
//
// # Outputs
//
//   - int: The number of messages expired.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	overdue := r.hub.overdueMessages(now)
	if len(overdue) == 0 {
		return 0
	}

	for _, msg := range overdue {
		r.expire(ctx, msg)
	}
	r.logger.Info("expired overdue collaboration requests", "count", len(overdue))
	return len(overdue)
}

// expire retires one overdue message and notifies its sender.
func (r *Reaper) expire(ctx context.Context, msg *AgentMessage) {
	r.hub.mu.Lock()
	msg.Processed = true
	r.hub.mu.Unlock()

	// The original sender may be the hub itself or an agent; timeouts to
	// unregistered senders are dropped by normal send validation.
	timeout := NewMessage(HubSender, msg.Sender, TypeErrorReport, map[string]any{
		"reason":           "response_deadline_exceeded",
		"message_id":       msg.ID,
		"recipient":        msg.Recipient,
		"collaboration_id": msg.Content["collaboration_id"],
		"deadline":         msg.ResponseDeadline,
	})
	timeout.Priority = PriorityHigh

	r.hub.SendMessage(ctx, timeout)
}
