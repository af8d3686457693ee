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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

// TestReaper_SweepExpiresOverdue verifies overdue collaboration requests
// are retired and the sender gets a timeout report.
func TestReaper_SweepExpiresOverdue(t *testing.T) {
	h := NewHubWithConfig(&fakeStore{doc: worldstate.Document{}}, HubConfig{
		CollaborationDeadline: time.Minute,
	})
	ctx := context.Background()
	h.RegisterAgent("requester")
	h.RegisterAgent("slow_agent")

	accepted := h.RequestCollaboration(ctx, "requester", []string{"slow_agent"}, "task", nil)
	require.Equal(t, []string{"slow_agent"}, accepted)

	reaper := NewReaper(h, time.Second)

	// Before the deadline nothing expires.
	assert.Equal(t, 0, reaper.Sweep(ctx, time.Now()))

	expired := reaper.Sweep(ctx, time.Now().Add(2*time.Minute))
	assert.Equal(t, 1, expired)

	// The request is retired and never delivered.
	assert.Empty(t, h.MessagesFor("slow_agent", TypeCollaborationRequest))

	// The requester got a timeout error report from the hub.
	reports := h.MessagesFor("requester", TypeErrorReport)
	require.Len(t, reports, 1)
	assert.Equal(t, HubSender, reports[0].Sender)
	assert.Equal(t, "response_deadline_exceeded", reports[0].Content["reason"])
	assert.Equal(t, PriorityHigh, reports[0].Priority)
}

// TestReaper_SweepIgnoresProcessedAndDeadlineless verifies already-read
// and deadline-free messages are never expired.
func TestReaper_SweepIgnoresProcessedAndDeadlineless(t *testing.T) {
	h := NewHubWithConfig(&fakeStore{doc: worldstate.Document{}}, HubConfig{
		CollaborationDeadline: time.Minute,
	})
	ctx := context.Background()
	h.RegisterAgent("requester")
	h.RegisterAgent("prompt_agent")

	h.RequestCollaboration(ctx, "requester", []string{"prompt_agent"}, "task", nil)

	// The agent reads the request in time.
	require.Len(t, h.MessagesFor("prompt_agent", TypeCollaborationRequest), 1)

	// A plain message without a deadline sits in the queue too.
	require.True(t, h.SendMessage(ctx, NewMessage("requester", "prompt_agent", TypeStoryUpdate, nil)))

	reaper := NewReaper(h, time.Second)
	assert.Equal(t, 0, reaper.Sweep(ctx, time.Now().Add(time.Hour)))
}

// TestReaper_RunStopsOnCancel verifies Run exits when the context ends.
func TestReaper_RunStopsOnCancel(t *testing.T) {
	h := newTestHub()
	reaper := NewReaper(h, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on cancel")
	}
}
