// Copyright 2025 Mikhail Karpov
// SPDX-License-Identifier: Apache-2.0

package trackclient

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LocalStore is durable key → bytes persistence for the engine's small set of
// values (the favorite-id set, per scope). Single-writer per scope; writes
// replace the value atomically.
type LocalStore interface {
	// Load returns the stored bytes for key, or (nil, false, nil) when the
	// key has never been written.
	Load(key string) (value []byte, ok bool, err error)

	// Save stores value under key, replacing any previous value.
	Save(key string, value []byte) error
}

// encodeIDSet serializes a set of opaque string ids as a sorted JSON array.
// Sorting keeps the stored bytes stable for identical sets.
func encodeIDSet(set map[string]struct{}) ([]byte, error) {
	ids := idSlice(set)
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to encode id set: %w", err)
	}
	return data, nil
}

// decodeIDSet parses a stored JSON array back into a set.
func decodeIDSet(data []byte) (map[string]struct{}, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode id set: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// idSlice returns the set's members as a sorted slice.
func idSlice(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// unionSets returns a ∪ b as a fresh set.
func unionSets(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

// equalSets reports whether a and b contain the same members.
func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
