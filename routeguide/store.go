// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package routeguide

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// FeatureStore is an immutable set of geographic features. All lookups
// are read-only, so a store is safe for concurrent use across calls and
// connections.
type FeatureStore struct {
	features []Feature
}

// NewFeatureStore builds a store over the given features. The slice is
// used as-is; callers must not mutate it afterwards.
func NewFeatureStore(features []Feature) *FeatureStore {
	return &FeatureStore{features: features}
}

// Load reads a feature database from a JSON file: an array of objects with
// "name" and "location" {"latitude", "longitude"} keys. Files ending in
// .zst are decompressed with zstd first.
func Load(path string) (*FeatureStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feature database: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var features []Feature
	if err := json.NewDecoder(r).Decode(&features); err != nil {
		return nil, fmt.Errorf("decoding feature database %s: %w", path, err)
	}
	return NewFeatureStore(features), nil
}

// Len returns the number of entries, named or not.
func (s *FeatureStore) Len() int {
	return len(s.features)
}

// At returns the named feature at the exact point. The bool is false when
// no entry matches or the matching entry has no name.
func (s *FeatureStore) At(p Point) (Feature, bool) {
	for _, f := range s.features {
		if f.Location.Equal(p) && f.Exists() {
			return f, true
		}
	}
	return Feature{}, false
}

// Within returns the named features inside the rectangle, in database
// order.
func (s *FeatureStore) Within(rect Rectangle) []Feature {
	var out []Feature
	for _, f := range s.features {
		if f.Exists() && rect.Contains(f.Location) {
			out = append(out, f)
		}
	}
	return out
}

// All returns the underlying feature slice. Callers must not mutate it.
func (s *FeatureStore) All() []Feature {
	return s.features
}
