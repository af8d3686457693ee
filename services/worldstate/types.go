// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worldstate

import (
	"errors"
	"time"
)

// Sentinel errors for the worldstate package.
var (
	// ErrEmptyChangedBy indicates an update without a producer identity.
	ErrEmptyChangedBy = errors.New("changed_by must not be empty")

	// ErrChecksum indicates the post-merge document could not be serialized
	// for checksumming. The commit is aborted and no version is advanced.
	ErrChecksum = errors.New("checksum serialization failed")
)

// Document is the shared world context: a free-form key-value mapping.
//
// Values are JSON-shaped (string, number, bool, nil, []any,
// map[string]any). The Store owns the live document exclusively; every
// value that crosses the package boundary is a deep copy.
type Document = map[string]any

// ContextVersion is an immutable snapshot taken at each committed update.
//
// Versions are numbered from 1, monotonically and gaplessly. Version 0
// denotes the implicit empty initial state and is never stored.
type ContextVersion struct {
	// Version is the snapshot number.
	Version int `json:"version"`

	// Timestamp is the wall-clock commit time.
	Timestamp time.Time `json:"timestamp"`

	// ContextData is a full copy of the document at commit time.
	ContextData Document `json:"context_data"`

	// ChangedBy identifies the producer that committed the update.
	ChangedBy string `json:"changed_by"`

	// ChangeSummary is free-text provided by the producer.
	ChangeSummary string `json:"change_summary"`

	// Checksum is sha256 over the sorted-key JSON serialization of
	// ContextData, truncated to 16 hex characters.
	Checksum string `json:"checksum"`
}

// ModifiedValue records the before and after of a changed key.
type ModifiedValue struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeDiff partitions the keys touched by one update.
//
// A key appears in exactly one partition: Added (absent before), Modified
// (present before with a different value), or Removed (absent after).
type ChangeDiff struct {
	Added    map[string]any           `json:"added"`
	Modified map[string]ModifiedValue `json:"modified"`
	Removed  map[string]any           `json:"removed"`
}

// ChangeLogEntry is the structured diff record parallel to a
// ContextVersion, 1:1 by version number.
//
// Invariant: applying entry v+1's Changes to version v's ContextData
// yields version v+1's ContextData.
type ChangeLogEntry struct {
	Version   int        `json:"version"`
	Timestamp time.Time  `json:"timestamp"`
	ChangedBy string     `json:"changed_by"`
	Changes   ChangeDiff `json:"changes"`
	Summary   string     `json:"summary"`
}

// ConsistencyReport is the result of the built-in structural health check.
//
// This is the Store's own sanity check over the current document; the
// pluggable rule engine lives in services/consistency and validates
// candidate (uncommitted) documents instead.
type ConsistencyReport struct {
	// IsConsistent is true when Issues is empty.
	IsConsistent bool `json:"is_consistent"`

	// Issues lists every structural problem found.
	Issues []string `json:"issues"`

	// LastCheck is when the check ran.
	LastCheck time.Time `json:"last_check"`

	// Version is the store version the check observed.
	Version int `json:"version"`
}

// SubscriberFunc receives the raw updates map of a committed change (not
// the merged document) and the identity of the producer that made it.
type SubscriberFunc func(updates Document, changedBy string)

// ChangeSink receives every committed ChangeLogEntry, typically for
// durable journaling. Sink errors are logged and never fail the commit,
// which has already succeeded by the time the sink runs.
type ChangeSink interface {
	Append(entry ChangeLogEntry) error
}

// StoreConfig configures retention for a Store.
type StoreConfig struct {
	// HistoryLimit caps the retained version history and change log.
	// When the cap is reached the oldest records are evicted; eviction is
	// an explicit, lossy operation. A value <= 0 keeps everything.
	HistoryLimit int

	// Sink, when non-nil, receives every committed change log entry.
	Sink ChangeSink
}

// DefaultStoreConfig returns the reference behavior: unbounded history,
// no journal.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{HistoryLimit: 0}
}

// Keys the built-in consistency check cares about.
const (
	KeyPlayerName      = "player_name"
	KeyCurrentLocation = "current_location"
	KeyGameState       = "game_state"
	KeyPlayerHealth    = "player_health"
	KeyStoryProgress   = "story_progress"
)
