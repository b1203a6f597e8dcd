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

// Package index implements the inode index: the snapshot mapping inode
// numbers to the hash of their current record.
package index

import (
	"fmt"
	"sort"

	"github.com/bridgefs/bridgefs/internal/codec"
	"github.com/bridgefs/bridgefs/internal/fserrors"
	"github.com/bridgefs/bridgefs/internal/hashid"
	"github.com/bridgefs/bridgefs/internal/record"
)

// An Index is one snapshot of the inode table. Mutating a filesystem never
// mutates an index in place on disk; the engine decodes the current
// snapshot, transforms it, and stores the result as a new blob.
//
// INVARIANT: every hash in the mapping resolves in the blob store.
// INVARIANT: for all mapped inodes i, i < nextINode or i == RootINode.
type Index struct {
	nextINode record.INode
	mapping   map[record.INode]hashid.Typed[record.Record]
}

// New returns an index containing exactly the root mapping. The first
// allocatable inode is record.FirstChildINode.
func New(root record.INode, rootHash hashid.Typed[record.Record]) *Index {
	return &Index{
		nextINode: record.FirstChildINode,
		mapping: map[record.INode]hashid.Typed[record.Record]{
			root: rootHash,
		},
	}
}

// Insert allocates the next inode for the supplied record hash. Inodes are
// monotonically increasing and never reused within an index lineage.
func (x *Index) Insert(h hashid.Typed[record.Record]) record.INode {
	ino := x.nextINode
	x.mapping[ino] = h
	x.nextINode++
	return ino
}

// Update replaces the mapping for an existing inode.
func (x *Index) Update(ino record.INode, h hashid.Typed[record.Record]) error {
	if _, ok := x.mapping[ino]; !ok {
		return fmt.Errorf("update inode %d: %w", ino, fserrors.ErrNotFound)
	}
	x.mapping[ino] = h
	return nil
}

// Lookup resolves an inode to the hash of its current record.
func (x *Index) Lookup(ino record.INode) (hashid.Typed[record.Record], bool) {
	h, ok := x.mapping[ino]
	return h, ok
}

// Remove drops the mapping for an inode. Removing an unmapped inode is a
// no-op. The inode number is not returned to the allocator.
func (x *Index) Remove(ino record.INode) {
	delete(x.mapping, ino)
}

// NextINode returns the next inode the allocator will hand out.
func (x *Index) NextINode() record.INode {
	return x.nextINode
}

// INodes returns the mapped inodes in increasing order.
func (x *Index) INodes() []record.INode {
	inos := make([]record.INode, 0, len(x.mapping))
	for ino := range x.mapping {
		inos = append(inos, ino)
	}
	sort.Slice(inos, func(i, j int) bool { return inos[i] < inos[j] })
	return inos
}

// Len returns the number of mapped inodes.
func (x *Index) Len() int {
	return len(x.mapping)
}

// EncodeTo appends the index encoding: the allocator cursor followed by the
// mapping entries in increasing inode order.
func (x *Index) EncodeTo(w *codec.Writer) {
	w.Uint64(uint64(x.nextINode))
	inos := x.INodes()
	w.Uint64(uint64(len(inos)))
	for _, ino := range inos {
		w.Uint64(uint64(ino))
		w.Raw(x.mapping[ino].Untyped().Bytes())
	}
}

// Encode returns the index encoding.
func Encode(x *Index) []byte {
	w := codec.NewWriter()
	x.EncodeTo(w)
	return w.Bytes()
}

// Decode parses an index encoding.
func Decode(p []byte) (*Index, error) {
	r := codec.NewReader(p)
	x := &Index{
		nextINode: record.INode(r.Uint64()),
		mapping:   make(map[record.INode]hashid.Typed[record.Record]),
	}
	n := r.Uint64()
	for i := uint64(0); i < n && r.Err() == nil; i++ {
		ino := record.INode(r.Uint64())
		raw := r.Raw(hashid.Size)
		if r.Err() != nil {
			break
		}
		h, err := hashid.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
		}
		x.mapping[ino] = hashid.TypedOf[record.Record](h)
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return x, nil
}
