// Copyright 2025 The BridgeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package manifest tracks how many logical slots across live records
// reference each stored hash.
package manifest

import (
	"sort"

	"github.com/bridgefs/bridgefs/internal/hashid"
)

// A Manifest is a multiset of live hash ids. It must be a multiset rather
// than a set: two files with identical contents share one blob, and removing
// one of them must not strand the other.
//
// The manifest is process-local and in-memory. It is an advisory aid for
// reclaiming unreferenced content, not a consistency mechanism; everything
// durable is reconstructable by walking from the root.
type Manifest struct {
	// INVARIANT: no entry has count zero.
	refs map[hashid.Hash]uint64
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{
		refs: make(map[hashid.Hash]uint64),
	}
}

// Incr adds one reference to the supplied hash.
func (m *Manifest) Incr(h hashid.Hash) {
	m.refs[h]++
}

// Decr removes one reference. Decrementing a hash with no entry is a no-op,
// which keeps retried removals idempotent. Reaching zero removes the entry;
// physical reclamation of the blob is the backing store's concern.
func (m *Manifest) Decr(h hashid.Hash) {
	n, ok := m.refs[h]
	if !ok {
		return
	}
	if n == 1 {
		delete(m.refs, h)
		return
	}
	m.refs[h] = n - 1
}

// Has reports whether the hash is referenced at all.
func (m *Manifest) Has(h hashid.Hash) bool {
	_, ok := m.refs[h]
	return ok
}

// Count returns the current reference count, zero if unreferenced.
func (m *Manifest) Count(h hashid.Hash) uint64 {
	return m.refs[h]
}

// Keys returns the referenced hashes in bytewise order.
func (m *Manifest) Keys() []hashid.Hash {
	keys := make([]hashid.Hash, 0, len(m.refs))
	for h := range m.refs {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool {
		return hashid.Compare(keys[i], keys[j]) < 0
	})
	return keys
}
