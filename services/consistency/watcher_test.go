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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatchRuleFile_InitialLoadFailure verifies a missing file fails fast.
func TestWatchRuleFile_InitialLoadFailure(t *testing.T) {
	v := NewValidator(healthyStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := WatchRuleFile(ctx, filepath.Join(t.TempDir(), "absent.yaml"), v)
	assert.Error(t, err)
}

// TestWatchRuleFile_Reload verifies a rewrite of the file installs the
// new rules.
func TestWatchRuleFile_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: first\n    expr: \"true\"\n"), 0644))

	v := NewValidator(healthyStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- WatchRuleFile(ctx, path, v) }()

	require.Eventually(t, func() bool {
		for _, name := range v.RuleNames() {
			if name == "first" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "initial load")

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: second\n    expr: \"true\"\n"), 0644))

	require.Eventually(t, func() bool {
		for _, name := range v.RuleNames() {
			if name == "second" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "reload after rewrite")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
