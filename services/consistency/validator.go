// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package consistency implements the pluggable rule engine and the
// conflict resolver for proposed world-context changes.
//
// # Description
//
// A Validator evaluates a candidate merged document (current context with
// proposed changes overlaid) against an ordered list of named predicates
// and reports every violation; it never commits anything. The Resolver
// partitions flagged conflicts into resolved and unresolved via per-type
// resolver functions.
//
// Rules can be plain Go predicates, or expressions compiled with
// expr-lang (see ruleset.go) and hot-reloaded from a YAML file.
package consistency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

// Validator evaluates named consistency rules against candidate contexts.
//
// # Thread Safety
//
// Safe for concurrent use. Rule registration and evaluation are guarded
// by a mutex; predicates themselves must be pure.
type Validator struct {
	mu     sync.RWMutex
	store  ContextReader
	rules  []Rule
	logger *slog.Logger
}

// NewValidator creates a Validator preloaded with the default rule set.
//
// # Description
//
// The defaults reproduce the reference rules exactly:
//
//   - health_bounds: player_health within [0,100] (100 assumed if absent)
//   - progress_monotonic: story_progress >= 0 (0 assumed if absent)
//   - required_fields: player_name and current_location present
//
// # Inputs
//
//   - store: Read-only context source. Must not be nil.
func NewValidator(store ContextReader) *Validator {
	v := &Validator{
		store:  store,
		logger: slog.Default().With("component", "consistency"),
	}
	v.registerDefaultRules()
	v.logger.Info("initialized consistency validator", "rules", len(v.rules))
	return v
}

func (v *Validator) registerDefaultRules() {
	v.rules = []Rule{
		{
			Name:    "health_bounds",
			Message: "Player health must be between 0 and 100",
			Check: func(ctx worldstate.Document) bool {
				health := numberOr(ctx, worldstate.KeyPlayerHealth, 100)
				return health >= 0 && health <= 100
			},
		},
		{
			Name:    "progress_monotonic",
			Message: "Story progress cannot be negative",
			Check: func(ctx worldstate.Document) bool {
				return numberOr(ctx, worldstate.KeyStoryProgress, 0) >= 0
			},
		},
		{
			Name:    "required_fields",
			Message: "Required fields must be present",
			Check: func(ctx worldstate.Document) bool {
				_, hasName := ctx[worldstate.KeyPlayerName]
				_, hasLocation := ctx[worldstate.KeyCurrentLocation]
				return hasName && hasLocation
			},
		},
	}
}

// RegisterRule appends a named predicate.
//
// # Description
//
// Rules evaluate in registration order. Registration never replaces an
// existing rule; callers wanting replacement use ReplaceRules.
//
// # Outputs
//
//   - error: Non-nil for an empty name or nil check.
func (v *Validator) RegisterRule(name, message string, check CheckFunc) error {
	if name == "" {
		return ErrEmptyRuleName
	}
	if check == nil {
		return ErrNilRuleCheck
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules = append(v.rules, Rule{Name: name, Message: message, Check: check})
	v.logger.Info("registered consistency rule", "rule", name)
	return nil
}

// ReplaceRules swaps the entire rule list. Used by the rule-file watcher;
// the default rules are kept in front of the replacement set.
func (v *Validator) ReplaceRules(rules []Rule) {
	v.mu.Lock()
	defer v.mu.Unlock()

	base := make([]Rule, 0, 3+len(rules))
	v.rules = nil
	v.registerDefaultRules()
	base = append(base, v.rules...)
	v.rules = append(base, rules...)
	v.logger.Info("replaced consistency rules", "rules", len(v.rules))
}

// RuleNames returns the registered rule names in evaluation order.
func (v *Validator) RuleNames() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, len(v.rules))
	for i, r := range v.rules {
		names[i] = r.Name
	}
	return names
}

// ValidateChanges evaluates every rule against current ∪ proposed.
//
// # Description
//
// Builds the candidate document (proposed wins on key collision) without
// committing it anywhere, then runs ALL rules: evaluation never
// short-circuits, so the result carries every violation. A panicking
// predicate counts as a violation of that rule.
//
// # Inputs
//
//   - proposed: Changes a producer wants to commit.
//
// # Outputs
//
//   - ValidationResult: IsValid is true iff no rule failed.
func (v *Validator) ValidateChanges(proposed worldstate.Document) ValidationResult {
	candidate := v.store.GetContext()
	for k, val := range proposed {
		candidate[k] = val
	}

	v.mu.RLock()
	rules := make([]Rule, len(v.rules))
	copy(rules, v.rules)
	v.mu.RUnlock()

	violations := []Violation{}
	for _, rule := range rules {
		if !v.checkSafely(rule, candidate) {
			violations = append(violations, Violation{Rule: rule.Name, Message: rule.Message})
		}
	}

	return ValidationResult{
		IsValid:    len(violations) == 0,
		Violations: violations,
		Timestamp:  time.Now(),
	}
}

// checkSafely runs one predicate, treating a panic as failure.
func (v *Validator) checkSafely(rule Rule, candidate worldstate.Document) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("consistency rule panicked", "rule", rule.Name, "panic", r)
			ok = false
		}
	}()
	return rule.Check(candidate)
}

// numberOr reads a numeric key with a fallback for absent or non-numeric
// values, mirroring the reference defaults.
func numberOr(doc worldstate.Document, key string, fallback float64) float64 {
	raw, ok := doc[key]
	if !ok {
		return fallback
	}
	switch n := raw.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}
