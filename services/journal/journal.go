// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists the context change log to BadgerDB.
//
// # Description
//
// An opt-in ChangeSink for the worldstate Store. Each committed
// ChangeLogEntry is appended under its version number; Replay streams the
// entries back in version order so a fresh process can rebuild the
// document by folding diffs. The core itself stays entirely in-memory —
// the journal only observes commits and never participates in them (a
// failed append is logged by the store, not surfaced to the producer).
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB serializes writes internally.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal is closed")

// keyPrefix namespaces change log entries within the database.
var keyPrefix = []byte("changelog/")

// Config configures the journal.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory uses an in-memory BadgerDB (tests).
	InMemory bool

	// SyncWrites forces fsync per append for durability.
	SyncWrites bool
}

// DefaultConfig returns a durable on-disk configuration.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// Journal is the badger-backed change log sink.
type Journal struct {
	db     *badger.DB
	closed bool
	logger *slog.Logger
}

// Open opens (or creates) a journal.
func Open(config Config) (*Journal, error) {
	opts := badger.DefaultOptions(config.Path).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites).
		WithLogger(nil)
	if config.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: slog.Default().With("component", "journal"),
	}
	j.logger.Info("opened change log journal", "path", config.Path, "in_memory", config.InMemory)
	return j, nil
}

// Append persists one change log entry. Implements worldstate.ChangeSink.
func (j *Journal) Append(entry worldstate.ChangeLogEntry) error {
	if j.closed {
		return ErrClosed
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding change log entry: %w", err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.Version), raw)
	})
}

// Replay streams persisted entries in version order.
//
// # Inputs
//
//   - fn: Called once per entry. A non-nil return stops the replay and
//     is propagated.
func (j *Journal) Replay(fn func(entry worldstate.ChangeLogEntry) error) error {
	if j.closed {
		return ErrClosed
	}

	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(raw []byte) error {
				var entry worldstate.ChangeLogEntry
				if err := json.Unmarshal(raw, &entry); err != nil {
					return fmt.Errorf("decoding change log entry: %w", err)
				}
				return fn(entry)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Rebuild folds all persisted diffs into a document, returning the
// reconstructed state and the last applied version.
func (j *Journal) Rebuild() (worldstate.Document, int, error) {
	doc := worldstate.Document{}
	last := 0

	err := j.Replay(func(entry worldstate.ChangeLogEntry) error {
		doc = worldstate.ApplyDiff(doc, entry.Changes)
		last = entry.Version
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return doc, last, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// entryKey builds the big-endian version key so badger's lexicographic
// iteration yields version order.
func entryKey(version int) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], uint64(version))
	return key
}
