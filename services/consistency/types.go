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
	"errors"
	"time"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

// Sentinel errors for the consistency package.
var (
	// ErrEmptyRuleName indicates a rule registration without a name.
	ErrEmptyRuleName = errors.New("rule name must not be empty")

	// ErrNilRuleCheck indicates a rule registration without a predicate.
	ErrNilRuleCheck = errors.New("rule check must not be nil")

	// ErrRuleCompile indicates an expression rule failed to compile.
	ErrRuleCompile = errors.New("rule expression failed to compile")
)

// ContextReader is the read-only slice of the store the rule engine needs.
// *worldstate.Store satisfies it.
type ContextReader interface {
	GetContext(keys ...string) worldstate.Document
}

// CheckFunc is a pure predicate over a candidate merged document.
// It returns true when the candidate satisfies the rule.
type CheckFunc func(candidate worldstate.Document) bool

// Rule is a named predicate with a human-readable violation message.
type Rule struct {
	Name    string
	Message string
	Check   CheckFunc
}

// Violation reports one failed rule.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of evaluating every rule against a
// candidate document. Warnings never appear here; the rule engine knows
// only pass/fail per rule.
type ValidationResult struct {
	IsValid    bool        `json:"is_valid"`
	Violations []Violation `json:"violations"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Conflict is a semantic game-state violation handed to the resolver.
// Type selects the resolver function; the remaining fields are free-form.
type Conflict struct {
	Type    string         `json:"type"`
	Detail  string         `json:"detail"`
	Context map[string]any `json:"context,omitempty"`
}

// Resolution is the outcome a resolver function produces for a conflict.
type Resolution struct {
	Conflict Conflict       `json:"conflict"`
	Action   string         `json:"action"`
	Applied  map[string]any `json:"applied,omitempty"`
}

// ResolverFunc attempts automatic resolution of one conflict.
// A non-nil error (or a panic) routes the conflict to the unresolved
// bucket.
type ResolverFunc func(c Conflict) (Resolution, error)

// ResolveResult partitions a batch of conflicts. Every input conflict
// appears in exactly one bucket.
type ResolveResult struct {
	Resolved   []Resolution `json:"resolved"`
	Unresolved []Conflict   `json:"unresolved"`
	Timestamp  time.Time    `json:"timestamp"`
}
