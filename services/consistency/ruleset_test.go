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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

// TestCompileExprRule verifies expression rules evaluate against the
// candidate document.
func TestCompileExprRule(t *testing.T) {
	rule, err := CompileExprRule(ExprRuleSpec{
		Name:    "gold_non_negative",
		Expr:    "ctx.player_gold == nil || ctx.player_gold >= 0",
		Message: "Player gold cannot be negative",
	})
	require.NoError(t, err)

	assert.True(t, rule.Check(worldstate.Document{}), "absent key passes")
	assert.True(t, rule.Check(worldstate.Document{"player_gold": 50}))
	assert.False(t, rule.Check(worldstate.Document{"player_gold": -1}))
}

// TestCompileExprRule_TopLevelVariables verifies document keys bind as
// bare expression variables too.
func TestCompileExprRule_TopLevelVariables(t *testing.T) {
	rule, err := CompileExprRule(ExprRuleSpec{
		Name: "level_cap",
		Expr: "player_level == nil || player_level <= 60",
	})
	require.NoError(t, err)

	assert.True(t, rule.Check(worldstate.Document{"player_level": 30}))
	assert.False(t, rule.Check(worldstate.Document{"player_level": 99}))
}

// TestCompileExprRule_Errors verifies bad specs are rejected.
func TestCompileExprRule_Errors(t *testing.T) {
	_, err := CompileExprRule(ExprRuleSpec{Expr: "true"})
	assert.ErrorIs(t, err, ErrEmptyRuleName)

	_, err = CompileExprRule(ExprRuleSpec{Name: "broken", Expr: "((("})
	assert.ErrorIs(t, err, ErrRuleCompile)
}

// TestLoadRuleFile verifies YAML parsing and all-or-nothing loading.
func TestLoadRuleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	good := `rules:
  - name: gold_non_negative
    expr: ctx.player_gold == nil || ctx.player_gold >= 0
    message: Player gold cannot be negative
  - name: mana_bounds
    expr: ctx.player_mana == nil || (ctx.player_mana >= 0 && ctx.player_mana <= 200)
    message: Player mana out of bounds
`
	require.NoError(t, os.WriteFile(path, []byte(good), 0644))

	rules, err := LoadRuleFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "gold_non_negative", rules[0].Name)

	bad := `rules:
  - name: fine
    expr: "true"
  - name: broken
    expr: "((("
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0644))

	_, err = LoadRuleFile(path)
	assert.ErrorIs(t, err, ErrRuleCompile, "one bad rule fails the whole load")
}

// TestApplyRuleFile verifies loaded rules participate in validation
// behind the defaults.
func TestApplyRuleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  - name: gold_non_negative
    expr: ctx.player_gold == nil || ctx.player_gold >= 0
    message: Player gold cannot be negative
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := NewValidator(healthyStore())
	require.NoError(t, ApplyRuleFile(path, v))

	result := v.ValidateChanges(worldstate.Document{"player_gold": -5})
	require.False(t, result.IsValid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "gold_non_negative", result.Violations[0].Rule)
	assert.Equal(t, "Player gold cannot be negative", result.Violations[0].Message)
}
