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

import "reflect"

// DiffDocuments computes the structured change between two documents.
//
// # Description
//
// Partitions keys into added (present only in new), modified (present in
// both with different values, recording old and new), and removed (present
// only in old). Every touched key lands in exactly one partition.
//
// # Inputs
//
//   - oldDoc: Document before the update.
//   - newDoc: Document after the update.
//
// # Outputs
//
//   - ChangeDiff: The three-way partition. Maps are always non-nil.
func DiffDocuments(oldDoc, newDoc Document) ChangeDiff {
	diff := ChangeDiff{
		Added:    make(map[string]any),
		Modified: make(map[string]ModifiedValue),
		Removed:  make(map[string]any),
	}

	for key, newVal := range newDoc {
		oldVal, present := oldDoc[key]
		switch {
		case !present:
			diff.Added[key] = newVal
		case !reflect.DeepEqual(oldVal, newVal):
			diff.Modified[key] = ModifiedValue{Old: oldVal, New: newVal}
		}
	}

	for key, oldVal := range oldDoc {
		if _, present := newDoc[key]; !present {
			diff.Removed[key] = oldVal
		}
	}

	return diff
}

// ApplyDiff replays a ChangeDiff onto a document copy.
//
// Used by journal replay and by tests asserting the diff/version
// invariant. The input document is not mutated.
func ApplyDiff(doc Document, diff ChangeDiff) Document {
	out := deepCopyDocument(doc)
	for key, val := range diff.Added {
		out[key] = deepCopyValue(val)
	}
	for key, mod := range diff.Modified {
		out[key] = deepCopyValue(mod.New)
	}
	for key := range diff.Removed {
		delete(out, key)
	}
	return out
}
