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

// Package rootref defines the single mutable slot holding the hash of the
// current index snapshot. The slot's value is the only datum that must be
// durable to survive restart; everything else is reconstructable by walking
// from the root.
package rootref

import (
	"context"

	"github.com/bridgefs/bridgefs/internal/hashid"
)

// A Ref is a mutable single-slot reference to a hash.
//
// The first Get of an uninitialized slot writes and returns a caller-
// supplied default (the hash of the initial empty-filesystem index). Only
// the engine calls Set, and only with the hash of a valid index snapshot.
//
// Multi-writer safety is the backing's concern: two engines racing on the
// same slot will silently lose one side's changes unless the backing
// provides compare-and-swap semantics.
type Ref interface {
	Get(ctx context.Context) (hashid.Hash, error)
	Set(ctx context.Context, h hashid.Hash) error
}

// Mem is an in-process Ref, used by tests and the memory mount backend.
type Mem struct {
	def         hashid.Hash
	value       hashid.Hash
	initialized bool
}

var _ Ref = &Mem{}

// NewMem returns an uninitialized slot with the supplied default.
func NewMem(def hashid.Hash) *Mem {
	return &Mem{def: def}
}

func (m *Mem) Get(_ context.Context) (hashid.Hash, error) {
	if !m.initialized {
		m.value = m.def
		m.initialized = true
	}
	return m.value, nil
}

func (m *Mem) Set(_ context.Context, h hashid.Hash) error {
	m.value = h
	m.initialized = true
	return nil
}
