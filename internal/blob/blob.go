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

// Package blob defines the content-addressed blob store contract consumed by
// the rest of the system, plus an in-memory implementation.
package blob

import (
	"context"
	"errors"

	"github.com/bridgefs/bridgefs/internal/hashid"
)

// ErrMissingBlob is returned by Get for a hash with no stored content. A
// missing blob reached through a live hash pointer is an invariant violation
// and is fatal to the calling operation.
var ErrMissingBlob = errors.New("blob: missing blob")

// Store is a content-addressed blob store, pre-bound with any backend
// connection and authorization information it needs.
//
// The store is logically append-only: blobs are never mutated, and a second
// Put of identical bytes is benign. Implementations are free to deduplicate,
// replicate, or encrypt transparently, as long as the returned id equals the
// BLAKE3 hash of the bytes.
type Store interface {
	// Put inserts the supplied bytes and returns their hash. Idempotent.
	Put(ctx context.Context, p []byte) (hashid.Hash, error)

	// Get returns the bytes stored under the supplied hash, or ErrMissingBlob.
	Get(ctx context.Context, h hashid.Hash) ([]byte, error)
}

// InMemory is a Store backed by a plain map. Used by tests and by the memory
// mount backend.
type InMemory struct {
	blobs map[hashid.Hash][]byte
}

var _ Store = &InMemory{}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		blobs: make(map[hashid.Hash][]byte),
	}
}

func (s *InMemory) Put(_ context.Context, p []byte) (hashid.Hash, error) {
	h := hashid.Sum(p)
	if _, ok := s.blobs[h]; ok {
		return h, nil
	}
	stored := make([]byte, len(p))
	copy(stored, p)
	s.blobs[h] = stored
	return h, nil
}

func (s *InMemory) Get(_ context.Context, h hashid.Hash) ([]byte, error) {
	p, ok := s.blobs[h]
	if !ok {
		return nil, ErrMissingBlob
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

// Len returns the number of distinct blobs held. Test helper.
func (s *InMemory) Len() int {
	return len(s.blobs)
}
