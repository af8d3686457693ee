// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package consistency

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Resolver attempts automatic resolution of flagged conflicts.
//
// # Thread Safety
//
// Safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	resolvers map[string]ResolverFunc
	logger    *slog.Logger
}

// NewResolver creates an empty Resolver. With no registered resolver
// functions every conflict is unresolved by default.
func NewResolver() *Resolver {
	return &Resolver{
		resolvers: make(map[string]ResolverFunc),
		logger:    slog.Default().With("component", "conflict_resolver"),
	}
}

// RegisterResolver maps a conflict type tag to a resolver function,
// replacing any previous registration for that type.
func (r *Resolver) RegisterResolver(conflictType string, fn ResolverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[conflictType] = fn
	r.logger.Info("registered conflict resolver", "type", conflictType)
}

// ResolveConflicts partitions conflicts into resolved and unresolved.
//
// # Description
//
// For each conflict: if a resolver is registered for its type the
// resolver runs and its resolution is captured; a resolver error or panic
// routes the conflict to the unresolved bucket; a conflict with no
// registered resolver is unresolved by default. No conflict is ever
// dropped — every input appears in exactly one bucket.
func (r *Resolver) ResolveConflicts(conflicts []Conflict) ResolveResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := ResolveResult{
		Resolved:   []Resolution{},
		Unresolved: []Conflict{},
		Timestamp:  time.Now(),
	}

	for _, conflict := range conflicts {
		fn, ok := r.resolvers[conflict.Type]
		if !ok {
			result.Unresolved = append(result.Unresolved, conflict)
			continue
		}

		resolution, err := r.resolveSafely(fn, conflict)
		if err != nil {
			r.logger.Error("failed to resolve conflict", "type", conflict.Type, "error", err)
			result.Unresolved = append(result.Unresolved, conflict)
			continue
		}
		result.Resolved = append(result.Resolved, resolution)
	}

	return result
}

// resolveSafely invokes a resolver, converting a panic into an error.
func (r *Resolver) resolveSafely(fn ResolverFunc, c Conflict) (res Resolution, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("resolver panicked: %v", rec)
		}
	}()
	return fn(c)
}
