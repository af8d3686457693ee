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
	"os"

	exprlang "github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/worldloom/services/worldstate"
)

// ExprRuleSpec is one expression rule as declared in a rule file.
//
// The expression evaluates against the candidate merged document: every
// document key is an expression variable (undefined variables are
// allowed and evaluate to nil), and `ctx` binds the whole document.
//
// Example:
//
//	- name: gold_non_negative
//	  expr: ctx.player_gold == nil || ctx.player_gold >= 0
//	  message: Player gold cannot be negative
type ExprRuleSpec struct {
	Name    string `yaml:"name"`
	Expr    string `yaml:"expr"`
	Message string `yaml:"message"`
}

// RuleFile is the YAML schema for declarative consistency rules.
type RuleFile struct {
	Rules []ExprRuleSpec `yaml:"rules"`
}

// CompileExprRule compiles one expression rule into a Rule.
//
// # Outputs
//
//   - Rule: Predicate returning true only when the expression yields true.
//   - error: Wraps ErrRuleCompile on bad syntax or an empty name.
func CompileExprRule(spec ExprRuleSpec) (Rule, error) {
	if spec.Name == "" {
		return Rule{}, ErrEmptyRuleName
	}

	program, err := exprlang.Compile(spec.Expr,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %q: %v", ErrRuleCompile, spec.Name, err)
	}

	return Rule{
		Name:    spec.Name,
		Message: spec.Message,
		Check: func(candidate worldstate.Document) bool {
			env := make(map[string]any, len(candidate)+1)
			for k, v := range candidate {
				env[k] = v
			}
			env["ctx"] = map[string]any(candidate)

			out, err := exprlang.Run(program, env)
			if err != nil {
				// Evaluation failure counts as a violation.
				return false
			}
			pass, ok := out.(bool)
			return ok && pass
		},
	}, nil
}

// LoadRuleFile parses a YAML rule file and compiles every rule.
//
// # Description
//
// All-or-nothing: a single bad rule fails the whole load so a partially
// applied rule set never replaces a working one.
func LoadRuleFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, spec := range file.Rules {
		rule, err := CompileExprRule(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ApplyRuleFile loads a rule file and installs it on the validator in
// one step. One-shot counterpart of WatchRuleFile.
func ApplyRuleFile(path string, validator *Validator) error {
	rules, err := LoadRuleFile(path)
	if err != nil {
		return err
	}
	validator.ReplaceRules(rules)
	return nil
}
