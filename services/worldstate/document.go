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

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// checksumLength is the number of hex characters kept from the sha256 sum.
const checksumLength = 16

// Checksum computes the deterministic content checksum of a document.
//
// # Description
//
// Serializes the document as JSON (encoding/json emits map keys in sorted
// order, so the result is independent of key insertion order) and returns
// the first 16 hex characters of the sha256 digest.
//
// # Outputs
//
//   - string: The truncated hex digest.
//   - error: Non-nil if the document contains unserializable values; the
//     caller must treat this as a failed commit.
func Checksum(doc Document) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChecksum, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:checksumLength], nil
}

// deepCopyDocument copies a document so that no mutable structure is
// shared across the package boundary.
func deepCopyDocument(doc Document) Document {
	if doc == nil {
		return Document{}
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

// deepCopyValue copies nested maps and slices; scalars are returned as-is.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}

// asFloat extracts a numeric value from a document entry.
//
// JSON decoding produces float64; in-process producers may hand in any
// integer or float type. Non-numeric values report false.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
