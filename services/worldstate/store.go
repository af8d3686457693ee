// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worldstate implements the shared, versioned world context that
// all producers read and write.
//
// # Description
//
// A Store holds a single mutable key-value document. Every committed
// mutation produces an immutable, checksummed ContextVersion and a
// parallel ChangeLogEntry, both append-only. Named subscribers are
// notified synchronously of every commit except their own.
//
// # Thread Safety
//
// All Store methods are safe for concurrent use. Mutations are serialized
// by a single per-instance mutex; reads observe a consistent snapshot and
// return independent deep copies.
package worldstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/worldloom/pkg/ringbuf"
	"github.com/AleutianAI/worldloom/services/observability"
)

const tracerName = "worldloom/worldstate"

// Store is the centralized context database all producers share.
type Store struct {
	mu sync.Mutex

	data      Document
	version   int
	versions  *ringbuf.Ring[ContextVersion]
	changeLog *ringbuf.Ring[ChangeLogEntry]

	// versionIndex maps version number to its snapshot for O(1) lookup.
	// Evicted versions are removed.
	versionIndex map[int]ContextVersion

	subscribers map[string][]SubscriberFunc

	sink   ChangeSink
	logger *slog.Logger
}

// NewStore creates a Store with the reference configuration.
func NewStore() *Store {
	return NewStoreWithConfig(DefaultStoreConfig())
}

// NewStoreWithConfig creates a Store with explicit retention settings.
//
// # Inputs
//
//   - config: Retention limits and optional change sink.
//
// # Outputs
//
//   - *Store: Ready-to-use store holding the empty document (version 0).
func NewStoreWithConfig(config StoreConfig) *Store {
	s := &Store{
		data:         make(Document),
		versions:     ringbuf.New[ContextVersion](config.HistoryLimit),
		changeLog:    ringbuf.New[ChangeLogEntry](config.HistoryLimit),
		versionIndex: make(map[int]ContextVersion),
		subscribers:  make(map[string][]SubscriberFunc),
		sink:         config.Sink,
		logger:       slog.Default().With("component", "worldstate"),
	}
	s.logger.Info("initialized shared context store", "history_limit", config.HistoryLimit)
	return s
}

// GetContext returns a copy of the current document.
//
// # Description
//
// With no keys, the full document is copied. With keys, the result is the
// projection onto the requested keys; keys absent from the document are
// silently omitted, never inserted as nil. Never mutates state.
func (s *Store) GetContext(keys ...string) Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keys) == 0 {
		return deepCopyDocument(s.data)
	}

	out := make(Document, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = deepCopyValue(v)
		}
	}
	return out
}

// CurrentVersion returns the version number of the latest commit, or 0
// when nothing has been committed.
func (s *Store) CurrentVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// UpdateContext merges updates into the document and commits a version.
//
// # Description
//
// Applies a shallow last-writer-wins merge (nested structures are replaced
// wholesale), increments the version counter, computes the checksum over
// the post-merge document, and appends a ContextVersion plus a
// ChangeLogEntry. All registered subscribers except changedBy are then
// notified synchronously with the raw updates map; a panicking subscriber
// is recovered and logged and never affects the commit or other
// subscribers.
//
// The whole operation is atomic with respect to concurrent callers:
// versions are never skipped, duplicated, or computed from a stale base.
//
// # Inputs
//
//   - ctx: Carries the trace span; the operation itself never blocks on I/O.
//   - updates: Keys to merge. The map is copied; the caller keeps ownership.
//   - changedBy: Producer identity. Must not be empty.
//   - summary: Free-text change description.
//
// # Outputs
//
//   - int: The new version number.
//   - error: Non-nil only for internal failures (empty changedBy,
//     unserializable values). No version is advanced on error.
func (s *Store) UpdateContext(ctx context.Context, updates Document, changedBy, summary string) (int, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "store.UpdateContext")
	defer span.End()

	if changedBy == "" {
		return 0, ErrEmptyChangedBy
	}

	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	oldData := deepCopyDocument(s.data)
	merged := deepCopyDocument(s.data)
	for k, v := range updates {
		merged[k] = deepCopyValue(v)
	}

	checksum, err := Checksum(merged)
	if err != nil {
		// Commit aborted; the live document is untouched.
		return 0, err
	}

	s.data = merged
	s.version++
	now := time.Now()

	snapshot := ContextVersion{
		Version:       s.version,
		Timestamp:     now,
		ContextData:   deepCopyDocument(merged),
		ChangedBy:     changedBy,
		ChangeSummary: summary,
		Checksum:      checksum,
	}
	s.appendVersion(snapshot)

	entry := ChangeLogEntry{
		Version:   s.version,
		Timestamp: now,
		ChangedBy: changedBy,
		Changes:   DiffDocuments(oldData, merged),
		Summary:   summary,
	}
	s.changeLog.Append(entry)

	if s.sink != nil {
		if err := s.sink.Append(entry); err != nil {
			s.logger.Error("change sink append failed", "version", s.version, "error", err)
		}
	}

	s.notifySubscribersLocked(updates, changedBy)

	span.SetAttributes(
		attribute.Int("version", s.version),
		attribute.String("changed_by", changedBy),
	)
	observability.RecordCommit(changedBy, time.Since(start))
	s.logger.Info("context updated", "version", s.version, "changed_by", changedBy, "summary", summary)
	return s.version, nil
}

// appendVersion stores a snapshot, keeping the lookup index in step with
// ring eviction.
func (s *Store) appendVersion(v ContextVersion) {
	if s.versions.AtCapacity() {
		if oldest, ok := s.versions.At(0); ok {
			delete(s.versionIndex, oldest.Version)
		}
	}
	s.versions.Append(v)
	s.versionIndex[v.Version] = v
}

// GetVersion returns the snapshot with the exact version number.
//
// The second return is false when the version does not exist or has been
// evicted by retention.
func (s *Store) GetVersion(n int) (ContextVersion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versionIndex[n]
	if !ok {
		return ContextVersion{}, false
	}
	v.ContextData = deepCopyDocument(v.ContextData)
	return v, true
}

// GetVersionHistory returns the most recent limit versions in
// chronological order (newest last), or everything retained if fewer
// exist.
//
// A limit <= 0 returns an empty slice. This is deliberately asymmetric
// with StoreConfig.HistoryLimit, where <= 0 means unbounded retention:
// a read states how much it wants, and "none" is the safe reading of a
// zero request. Pass a limit of at least CurrentVersion() to read
// everything retained.
func (s *Store) GetVersionHistory(limit int) []ContextVersion {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions.Last(limit)
	out := make([]ContextVersion, len(versions))
	for i, v := range versions {
		v.ContextData = deepCopyDocument(v.ContextData)
		out[i] = v
	}
	return out
}

// GetChangeLog returns the most recent limit change log entries in
// chronological order.
func (s *Store) GetChangeLog(limit int) []ChangeLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changeLog.Last(limit)
}

// SubscribeToChanges registers a callback for future commits.
//
// # Description
//
// The callback fires on every committed update whose changedBy differs
// from subscriber. Multiple callbacks per subscriber are permitted and all
// fire. Duplicate registrations are NOT deduplicated: subscribing the same
// callback twice delivers it twice, matching the reference design.
func (s *Store) SubscribeToChanges(subscriber string, callback SubscriberFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[subscriber] = append(s.subscribers[subscriber], callback)
	s.logger.Info("subscribed to context changes", "subscriber", subscriber)
}

// notifySubscribersLocked fans a commit out to everyone except its author.
//
// Runs inside the commit critical section; a slow subscriber delays the
// commit's visible completion to other callers (known contention point).
// Each invocation is isolated: panics are recovered and logged.
func (s *Store) notifySubscribersLocked(updates Document, changedBy string) {
	for subscriber, callbacks := range s.subscribers {
		if subscriber == changedBy {
			continue
		}
		for _, cb := range callbacks {
			s.invokeSubscriber(subscriber, cb, updates, changedBy)
		}
	}
}

func (s *Store) invokeSubscriber(subscriber string, cb SubscriberFunc, updates Document, changedBy string) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordSubscriberFailure(subscriber)
			s.logger.Error("subscriber callback panicked", "subscriber", subscriber, "panic", r)
		}
	}()
	cb(deepCopyDocument(updates), changedBy)
}

// ValidateConsistency runs the built-in structural health check on the
// current document.
//
// # Description
//
// Checks presence of player_name, current_location, and game_state, and
// range-checks player_health and story_progress against [0,100] when
// present. This is a weaker, built-in sanity check; the pluggable rule
// engine in services/consistency validates candidate changes instead.
func (s *Store) ValidateConsistency() ConsistencyReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	issues := []string{}

	for _, field := range []string{KeyPlayerName, KeyCurrentLocation, KeyGameState} {
		if _, ok := s.data[field]; !ok {
			issues = append(issues, "Missing required field: "+field)
		}
	}

	if raw, ok := s.data[KeyPlayerHealth]; ok {
		if health, numeric := asFloat(raw); !numeric || health < 0 || health > 100 {
			issues = append(issues, "Invalid player health")
		}
	}

	if raw, ok := s.data[KeyStoryProgress]; ok {
		if progress, numeric := asFloat(raw); !numeric || progress < 0 || progress > 100 {
			issues = append(issues, "Invalid story progress")
		}
	}

	return ConsistencyReport{
		IsConsistent: len(issues) == 0,
		Issues:       issues,
		LastCheck:    time.Now(),
		Version:      s.version,
	}
}
