// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestHelpers_NoopBeforeInit verifies recording before InitMetrics never
// panics.
func TestHelpers_NoopBeforeInit(t *testing.T) {
	Default = nil

	RecordCommit("producer", time.Millisecond)
	RecordSubscriberFailure("sub")
	RecordMessage("story_update", true)
	RecordDelivery("agent", 3)
	RecordConflicts("agent", 1)
	AgentRegistered()
}

// TestRecordAfterInit verifies counters move once initialized.
func TestRecordAfterInit(t *testing.T) {
	m := InitMetrics()

	RecordCommit("story_generator", time.Millisecond)
	RecordCommit("story_generator", time.Millisecond)
	RecordMessage("audio_cue", false)
	RecordDelivery("quest_master", 4)
	RecordConflicts("healer", 2)
	AgentRegistered()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CommitsTotal.WithLabelValues("story_generator")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesTotal.WithLabelValues("audio_cue", "rejected")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("quest_master")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("healer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RegisteredAgents))

	// RecordDelivery with zero count is a no-op.
	RecordDelivery("quest_master", 0)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("quest_master")))
}
