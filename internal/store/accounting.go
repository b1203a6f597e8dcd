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

// Package store wraps the blob store with encoding and reference accounting.
// Every record that enters or leaves storage passes through here.
package store

import (
	"context"
	"fmt"

	"github.com/bridgefs/bridgefs/internal/blob"
	"github.com/bridgefs/bridgefs/internal/hashid"
	"github.com/bridgefs/bridgefs/internal/index"
	"github.com/bridgefs/bridgefs/internal/manifest"
	"github.com/bridgefs/bridgefs/internal/record"
)

// An Accounting store pairs a blob store with a reference manifest.
//
// Storing a value counts one reference, since storing implies the caller
// will reference the result. Deleting decrements and cascades into the
// value's outgoing references according to its type:
//
//   - a data block has no outgoing references;
//   - a file record holds one reference to its content block;
//   - a directory record holds none (its children are referenced via the
//     inode index, and a directory leaving the index must already be empty);
//   - an index deliberately never cascades into its mapped records, because
//     each mapping entry is the current snapshot of a still-live inode whose
//     replacement is driven explicitly by the engine.
//
// Replace is delete-then-store as a single primitive. Replacing a file
// record with a successor file record does not cascade into the prior
// content block: block transitions are performed explicitly through
// ReplaceDataBlock, so a record-level replace transfers block ownership to
// the successor.
type Accounting struct {
	blobs    blob.Store
	manifest *manifest.Manifest
}

// NewAccounting wraps the supplied blob store with a fresh manifest.
func NewAccounting(blobs blob.Store) *Accounting {
	return &Accounting{
		blobs:    blobs,
		manifest: manifest.New(),
	}
}

// Manifest exposes the reference manifest for invariant checks.
func (a *Accounting) Manifest() *manifest.Manifest {
	return a.manifest
}

// Blobs exposes the underlying blob store.
func (a *Accounting) Blobs() blob.Store {
	return a.blobs
}

////////////////////////////////////////////////////////////////////////
// Data blocks
////////////////////////////////////////////////////////////////////////

func (a *Accounting) StoreDataBlock(
	ctx context.Context,
	b *record.DataBlock) (hashid.Typed[record.DataBlock], error) {
	h, err := a.blobs.Put(ctx, record.EncodeDataBlock(b))
	if err != nil {
		return hashid.Typed[record.DataBlock]{}, fmt.Errorf("put data block: %w", err)
	}
	a.manifest.Incr(h)
	return hashid.TypedOf[record.DataBlock](h), nil
}

func (a *Accounting) LoadDataBlock(
	ctx context.Context,
	h hashid.Typed[record.DataBlock]) (*record.DataBlock, error) {
	p, err := a.blobs.Get(ctx, h.Untyped())
	if err != nil {
		return nil, fmt.Errorf("get data block %v: %w", h, err)
	}
	b, err := record.DecodeDataBlock(p)
	if err != nil {
		return nil, fmt.Errorf("decode data block %v: %w", h, err)
	}
	return b, nil
}

// DeleteDataBlock drops one reference to the block. Blocks have no outgoing
// references, so there is nothing to cascade into.
func (a *Accounting) DeleteDataBlock(h hashid.Typed[record.DataBlock]) {
	a.manifest.Decr(h.Untyped())
}

// ReplaceDataBlock atomically swaps one block reference for another,
// returning the successor's hash.
func (a *Accounting) ReplaceDataBlock(
	ctx context.Context,
	prev hashid.Typed[record.DataBlock],
	b *record.DataBlock) (hashid.Typed[record.DataBlock], error) {
	a.DeleteDataBlock(prev)
	return a.StoreDataBlock(ctx, b)
}

////////////////////////////////////////////////////////////////////////
// Records
////////////////////////////////////////////////////////////////////////

func (a *Accounting) StoreRecord(
	ctx context.Context,
	rec record.Record) (hashid.Typed[record.Record], error) {
	h, err := a.blobs.Put(ctx, record.Encode(rec))
	if err != nil {
		return hashid.Typed[record.Record]{}, fmt.Errorf("put record: %w", err)
	}
	a.manifest.Incr(h)
	return hashid.TypedOf[record.Record](h), nil
}

func (a *Accounting) LoadRecord(
	ctx context.Context,
	h hashid.Typed[record.Record]) (record.Record, error) {
	p, err := a.blobs.Get(ctx, h.Untyped())
	if err != nil {
		return nil, fmt.Errorf("get record %v: %w", h, err)
	}
	rec, err := record.Decode(p)
	if err != nil {
		return nil, fmt.Errorf("decode record %v: %w", h, err)
	}
	return rec, nil
}

// DeleteRecord drops one reference to the record and cascades into its
// outgoing references.
func (a *Accounting) DeleteRecord(
	ctx context.Context,
	h hashid.Typed[record.Record]) error {
	rec, err := a.LoadRecord(ctx, h)
	if err != nil {
		return err
	}
	a.manifest.Decr(h.Untyped())
	a.deleteRecordReferences(rec, nil)
	return nil
}

// ReplaceRecord swaps the record at prev for the supplied successor,
// returning the successor's hash.
func (a *Accounting) ReplaceRecord(
	ctx context.Context,
	prev hashid.Typed[record.Record],
	rec record.Record) (hashid.Typed[record.Record], error) {
	prevRec, err := a.LoadRecord(ctx, prev)
	if err != nil {
		return hashid.Typed[record.Record]{}, err
	}
	a.manifest.Decr(prev.Untyped())
	a.deleteRecordReferences(prevRec, rec)
	return a.StoreRecord(ctx, rec)
}

// deleteRecordReferences applies the per-type delete policy to a record
// leaving storage, given its successor if this is a replacement.
func (a *Accounting) deleteRecordReferences(prev, next record.Record) {
	f, ok := prev.(*record.FileRecord)
	if !ok {
		// Directories carry no outgoing content references.
		return
	}
	if next != nil {
		if _, ok := next.(*record.FileRecord); ok {
			// The successor file record takes over the block reference. Any
			// block swap has already been performed through ReplaceDataBlock.
			return
		}
	}
	a.DeleteDataBlock(f.ContentHash)
}

////////////////////////////////////////////////////////////////////////
// Index snapshots
////////////////////////////////////////////////////////////////////////

func (a *Accounting) StoreIndex(
	ctx context.Context,
	x *index.Index) (hashid.Typed[index.Index], error) {
	h, err := a.blobs.Put(ctx, index.Encode(x))
	if err != nil {
		return hashid.Typed[index.Index]{}, fmt.Errorf("put index: %w", err)
	}
	a.manifest.Incr(h)
	return hashid.TypedOf[index.Index](h), nil
}

func (a *Accounting) LoadIndex(
	ctx context.Context,
	h hashid.Typed[index.Index]) (*index.Index, error) {
	p, err := a.blobs.Get(ctx, h.Untyped())
	if err != nil {
		return nil, fmt.Errorf("get index %v: %w", h, err)
	}
	x, err := index.Decode(p)
	if err != nil {
		return nil, fmt.Errorf("decode index %v: %w", h, err)
	}
	return x, nil
}

// ReplaceIndex swaps the index snapshot at prev for the supplied successor.
// Index replacement never cascades into the mapped records; per-inode
// replacement is driven by the engine through explicit record calls.
func (a *Accounting) ReplaceIndex(
	ctx context.Context,
	prev hashid.Typed[index.Index],
	x *index.Index) (hashid.Typed[index.Index], error) {
	a.manifest.Decr(prev.Untyped())
	return a.StoreIndex(ctx, x)
}
