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
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchRuleFile hot-reloads a YAML rule file into the validator.
//
// # Description
//
// Performs an initial load, then watches the file's directory (editors
// replace files rather than write in place, so watching the path itself
// misses renames) and reloads on every write or create of the target
// file. A load failure leaves the previous rule set active.
//
// Blocks until ctx is canceled.
//
// # Inputs
//
//   - ctx: Cancellation.
//   - path: The YAML rule file.
//   - validator: Receives the compiled rules via ReplaceRules.
//
// # Outputs
//
//   - error: Non-nil if the watcher cannot be established or the initial
//     load fails.
func WatchRuleFile(ctx context.Context, path string, validator *Validator) error {
	logger := slog.Default().With("component", "rule_watcher", "path", path)

	rules, err := LoadRuleFile(path)
	if err != nil {
		return err
	}
	validator.ReplaceRules(rules)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			rules, err := LoadRuleFile(path)
			if err != nil {
				logger.Error("rule reload failed, keeping previous rules", "error", err)
				continue
			}
			validator.ReplaceRules(rules)
			logger.Info("reloaded consistency rules", "rules", len(rules))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("rule watcher error", "error", err)
		}
	}
}
