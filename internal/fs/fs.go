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

// Package fs implements the filesystem operations engine: the translation of
// POSIX-level semantics into pure transformations of the content-addressed
// object graph.
//
// Every operation starts by loading the current root hash and decoding the
// index snapshot it names. Mutations compute new records leaf-first, re-
// encode everything on the path from the mutated leaf up through the index,
// and finish by advancing the root to the new snapshot hash. Intermediate
// state is never observable: a caller sees either the fully-old root or the
// fully-new one.
package fs

import (
	"context"
	"fmt"

	"github.com/bridgefs/bridgefs/internal/fserrors"
	"github.com/bridgefs/bridgefs/internal/hashid"
	"github.com/bridgefs/bridgefs/internal/index"
	"github.com/bridgefs/bridgefs/internal/logger"
	"github.com/bridgefs/bridgefs/internal/record"
	"github.com/bridgefs/bridgefs/internal/rootref"
	"github.com/bridgefs/bridgefs/internal/store"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// Config supplies the engine's collaborators.
type Config struct {
	// A clock used for attribute timestamps.
	Clock timeutil.Clock

	// The slot holding the hash of the current index snapshot.
	Root rootref.Ref

	// The accounting store all records pass through.
	Store *store.Accounting
}

// A FileSystem is the synchronous operations engine. It is single-threaded
// by design: each operation requires exclusive access from root load to root
// advance, and there is no internal parallelism or retry.
type FileSystem struct {
	/////////////////////////
	// Dependencies
	/////////////////////////

	clock timeutil.Clock
	root  rootref.Ref
	store *store.Accounting

	/////////////////////////
	// Mutable state
	/////////////////////////

	// A mutex serializing operations. The guarded state is the root slot and
	// the accounting store, both exclusively owned by this engine.
	mu syncutil.InvariantMutex
}

// New creates an engine over the supplied collaborators.
func New(cfg *Config) *FileSystem {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}

	fs := &FileSystem{
		clock: clock,
		root:  cfg.Root,
		store: cfg.Store,
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

// InitEmpty stores the initial empty-filesystem state: a root directory
// whose parent is itself, and an index mapping only the root inode. The
// returned hash is the value to hand the root slot as its first-read
// default.
func InitEmpty(
	ctx context.Context,
	acc *store.Accounting,
	clock timeutil.Clock) (hashid.Hash, error) {
	root := record.NewDirectoryRecord(record.RootINode, record.DefaultAttrs(clock))
	rootHash, err := acc.StoreRecord(ctx, root)
	if err != nil {
		return hashid.Hash{}, fmt.Errorf("store root directory: %w", err)
	}

	indexHash, err := acc.StoreIndex(ctx, index.New(record.RootINode, rootHash))
	if err != nil {
		return hashid.Hash{}, fmt.Errorf("store initial index: %w", err)
	}
	return indexHash.Untyped(), nil
}

// A DirEntry is one row of a directory listing.
type DirEntry struct {
	Name   record.Filename
	INode  record.INode
	Record record.Record
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Walk the current snapshot and panic on any violation of the core
// invariants. Expensive; runs only when invariant checking is enabled.
func (fs *FileSystem) checkInvariants() {
	ctx := context.Background()

	rootHash, err := fs.root.Get(ctx)
	if err != nil {
		panic(fmt.Sprintf("root slot unreadable: %v", err))
	}
	x, err := fs.store.LoadIndex(ctx, hashid.TypedOf[index.Index](rootHash))
	if err != nil {
		panic(fmt.Sprintf("root index unreadable: %v", err))
	}

	for _, ino := range x.INodes() {
		// INVARIANT: for all mapped inodes i, i == root or i < nextINode.
		if ino != record.RootINode && ino >= x.NextINode() {
			panic(fmt.Sprintf("inode %d at or beyond allocator cursor %d", ino, x.NextINode()))
		}

		// INVARIANT: every mapped hash resolves to a decodable record.
		h, _ := x.Lookup(ino)
		rec, err := fs.store.LoadRecord(ctx, h)
		if err != nil {
			panic(fmt.Sprintf("inode %d dangling: %v", ino, err))
		}

		switch rec := rec.(type) {
		case *record.FileRecord:
			// INVARIANT: a file's size matches its block's length.
			b, err := fs.store.LoadDataBlock(ctx, rec.ContentHash)
			if err != nil {
				panic(fmt.Sprintf("inode %d content dangling: %v", ino, err))
			}
			if uint64(b.Len()) != rec.Size {
				panic(fmt.Sprintf(
					"inode %d size mismatch: record %d vs. block %d",
					ino, rec.Size, b.Len()))
			}

		case *record.DirectoryRecord:
			// INVARIANT: children and parent resolve in the index.
			for name, child := range rec.Children {
				if _, ok := x.Lookup(child); !ok {
					panic(fmt.Sprintf("inode %d child %q -> %d unmapped", ino, name, child))
				}
			}
			if _, ok := x.Lookup(rec.Parent); !ok {
				panic(fmt.Sprintf("inode %d parent %d unmapped", ino, rec.Parent))
			}
		}
	}
}

// Load the current root hash and decode the snapshot it names.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) loadIndex(
	ctx context.Context) (prev hashid.Typed[index.Index], x *index.Index, err error) {
	rootHash, err := fs.root.Get(ctx)
	if err != nil {
		err = fmt.Errorf("load root: %w", err)
		return
	}

	prev = hashid.TypedOf[index.Index](rootHash)
	x, err = fs.store.LoadIndex(ctx, prev)
	return
}

// Store the transformed snapshot and advance the root to it.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) commit(
	ctx context.Context,
	prev hashid.Typed[index.Index],
	x *index.Index) error {
	next, err := fs.store.ReplaceIndex(ctx, prev, x)
	if err != nil {
		return err
	}
	return fs.root.Set(ctx, next.Untyped())
}

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) lookupRecord(
	ctx context.Context,
	x *index.Index,
	ino record.INode) (record.Record, hashid.Typed[record.Record], error) {
	h, ok := x.Lookup(ino)
	if !ok {
		return nil, h, fmt.Errorf("inode %d: %w", ino, fserrors.ErrNotFound)
	}
	rec, err := fs.store.LoadRecord(ctx, h)
	return rec, h, err
}

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) lookupDirectory(
	ctx context.Context,
	x *index.Index,
	ino record.INode) (*record.DirectoryRecord, hashid.Typed[record.Record], error) {
	rec, h, err := fs.lookupRecord(ctx, x, ino)
	if err != nil {
		return nil, h, err
	}
	d, ok := rec.(*record.DirectoryRecord)
	if !ok {
		return nil, h, fmt.Errorf("inode %d: %w", ino, fserrors.ErrNotADirectory)
	}
	return d, h, nil
}

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) lookupFile(
	ctx context.Context,
	x *index.Index,
	ino record.INode) (*record.FileRecord, hashid.Typed[record.Record], error) {
	rec, h, err := fs.lookupRecord(ctx, x, ino)
	if err != nil {
		return nil, h, err
	}
	f, ok := rec.(*record.FileRecord)
	if !ok {
		return nil, h, fmt.Errorf("inode %d: %w", ino, fserrors.ErrIsADirectory)
	}
	return f, h, nil
}

// Create a child under the parent directory: check preconditions, invoke
// build to produce the new record, allocate its inode, and run the rewrite
// chain up through the root. The precondition check runs before build so a
// refused create makes no writes at all.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) createChild(
	ctx context.Context,
	parent record.INode,
	name record.Filename,
	build func() (record.Record, error)) (record.INode, error) {
	prevIndexHash, x, err := fs.loadIndex(ctx)
	if err != nil {
		return 0, err
	}

	parentDir, parentHash, err := fs.lookupDirectory(ctx, x, parent)
	if err != nil {
		return 0, err
	}
	if _, ok := parentDir.Lookup(name); ok {
		return 0, fmt.Errorf("%q in inode %d: %w", name, parent, fserrors.ErrExists)
	}

	rec, err := build()
	if err != nil {
		return 0, err
	}
	recHash, err := fs.store.StoreRecord(ctx, rec)
	if err != nil {
		return 0, err
	}
	ino := x.Insert(recHash)

	parentDir.Insert(name, ino)
	newParentHash, err := fs.store.ReplaceRecord(ctx, parentHash, parentDir)
	if err != nil {
		return 0, err
	}
	if err := x.Update(parent, newParentHash); err != nil {
		return 0, err
	}

	if err := fs.commit(ctx, prevIndexHash, x); err != nil {
		return 0, err
	}
	return ino, nil
}

////////////////////////////////////////////////////////////////////////
// Read operations
////////////////////////////////////////////////////////////////////////

// LookUpByINode resolves an inode to its current record.
func (fs *FileSystem) LookUpByINode(
	ctx context.Context,
	ino record.INode) (record.Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, x, err := fs.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	rec, _, err := fs.lookupRecord(ctx, x, ino)
	return rec, err
}

// LookUpFileByINode is LookUpByINode plus a variant check.
func (fs *FileSystem) LookUpFileByINode(
	ctx context.Context,
	ino record.INode) (*record.FileRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, x, err := fs.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	f, _, err := fs.lookupFile(ctx, x, ino)
	return f, err
}

// LookUpDirectoryByINode is LookUpByINode plus a variant check.
func (fs *FileSystem) LookUpDirectoryByINode(
	ctx context.Context,
	ino record.INode) (*record.DirectoryRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, x, err := fs.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	d, _, err := fs.lookupDirectory(ctx, x, ino)
	return d, err
}

// LookUpByName resolves a name within a parent directory.
func (fs *FileSystem) LookUpByName(
	ctx context.Context,
	parent record.INode,
	name record.Filename) (record.INode, record.Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, x, err := fs.loadIndex(ctx)
	if err != nil {
		return 0, nil, err
	}
	return fs.lookupByName(ctx, x, parent, name)
}

// LOCKS_REQUIRED(fs.mu)
func (fs *FileSystem) lookupByName(
	ctx context.Context,
	x *index.Index,
	parent record.INode,
	name record.Filename) (record.INode, record.Record, error) {
	parentDir, _, err := fs.lookupDirectory(ctx, x, parent)
	if err != nil {
		return 0, nil, err
	}

	ino, ok := parentDir.Lookup(name)
	if !ok {
		return 0, nil, fmt.Errorf("%q in inode %d: %w", name, parent, fserrors.ErrNotFound)
	}
	rec, _, err := fs.lookupRecord(ctx, x, ino)
	return ino, rec, err
}

// ReadFile returns the bytes in [offset, offset+size) of the file's
// contents, clamped to the end of the file. An offset at or beyond the end
// yields empty bytes rather than an error.
func (fs *FileSystem) ReadFile(
	ctx context.Context,
	ino record.INode,
	offset int64,
	size int64) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, x, err := fs.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	f, _, err := fs.lookupFile(ctx, x, ino)
	if err != nil {
		return nil, err
	}

	b, err := fs.store.LoadDataBlock(ctx, f.ContentHash)
	if err != nil {
		return nil, err
	}

	if offset < 0 || offset >= int64(b.Len()) || size <= 0 {
		return nil, nil
	}
	end := offset + size
	if end > int64(b.Len()) {
		end = int64(b.Len())
	}
	out := make([]byte, end-offset)
	copy(out, b.Data[offset:end])
	return out, nil
}

// ListDirectory returns one entry per child, in bytewise name order,
// followed by the two synthetic entries "." (the directory itself) and ".."
// (its parent).
func (fs *FileSystem) ListDirectory(
	ctx context.Context,
	ino record.INode) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, x, err := fs.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	d, _, err := fs.lookupDirectory(ctx, x, ino)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(d.Children)+2)
	for _, name := range d.Names() {
		child := d.Children[name]
		rec, _, err := fs.lookupRecord(ctx, x, child)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{Name: name, INode: child, Record: rec})
	}

	entries = append(entries, DirEntry{Name: record.Dot, INode: ino, Record: d})

	parentRec, _, err := fs.lookupRecord(ctx, x, d.Parent)
	if err != nil {
		return nil, err
	}
	entries = append(entries, DirEntry{Name: record.DotDot, INode: d.Parent, Record: parentRec})

	return entries, nil
}

////////////////////////////////////////////////////////////////////////
// Mutations
////////////////////////////////////////////////////////////////////////

// CreateFile creates an empty file under the parent directory, returning
// its inode and record.
func (fs *FileSystem) CreateFile(
	ctx context.Context,
	parent record.INode,
	name record.Filename,
	attrs record.CommonAttrs) (record.INode, *record.FileRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	logger.Tracef("fs: create_file parent=%d name=%q", parent, name)

	var f *record.FileRecord
	ino, err := fs.createChild(ctx, parent, name, func() (record.Record, error) {
		empty := &record.DataBlock{}
		contentHash, err := fs.store.StoreDataBlock(ctx, empty)
		if err != nil {
			return nil, err
		}
		f = &record.FileRecord{
			ContentHash: contentHash,
			Size:        uint64(empty.Len()),
			Attrs:       attrs,
		}
		return f, nil
	})
	if err != nil {
		return 0, nil, err
	}
	return ino, f, nil
}

// CreateDirectory creates an empty directory under the parent directory.
func (fs *FileSystem) CreateDirectory(
	ctx context.Context,
	parent record.INode,
	name record.Filename,
	attrs record.CommonAttrs) (record.INode, *record.DirectoryRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	logger.Tracef("fs: create_directory parent=%d name=%q", parent, name)

	d := record.NewDirectoryRecord(parent, attrs)
	ino, err := fs.createChild(ctx, parent, name, func() (record.Record, error) {
		return d, nil
	})
	if err != nil {
		return 0, nil, err
	}
	return ino, d, nil
}

// WriteFile overwrites data at the supplied offset, zero-extending the file
// as needed, and returns the number of bytes written. The whole block is
// rewritten; extent-based updates are a possible future refinement, not a
// requirement.
func (fs *FileSystem) WriteFile(
	ctx context.Context,
	ino record.INode,
	offset int64,
	data []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	logger.Tracef("fs: write inode=%d offset=%d len=%d", ino, offset, len(data))

	if offset < 0 {
		return 0, fmt.Errorf("write inode %d: negative offset %d", ino, offset)
	}

	prevIndexHash, x, err := fs.loadIndex(ctx)
	if err != nil {
		return 0, err
	}
	f, fileHash, err := fs.lookupFile(ctx, x, ino)
	if err != nil {
		return 0, err
	}

	b, err := fs.store.LoadDataBlock(ctx, f.ContentHash)
	if err != nil {
		return 0, err
	}

	end := offset + int64(len(data))
	if end > int64(len(b.Data)) {
		grown := make([]byte, end)
		copy(grown, b.Data)
		b.Data = grown
	}
	copy(b.Data[offset:end], data)

	newContentHash, err := fs.store.ReplaceDataBlock(ctx, f.ContentHash, b)
	if err != nil {
		return 0, err
	}

	now := fs.clock.Now().UTC()
	f.ContentHash = newContentHash
	f.Size = uint64(len(b.Data))
	f.Attrs.Mtime = now
	f.Attrs.Ctime = now

	newFileHash, err := fs.store.ReplaceRecord(ctx, fileHash, f)
	if err != nil {
		return 0, err
	}
	if err := x.Update(ino, newFileHash); err != nil {
		return 0, err
	}

	if err := fs.commit(ctx, prevIndexHash, x); err != nil {
		return 0, err
	}
	return len(data), nil
}

// RemoveFileByName unlinks a file from its parent directory, deleting its
// record (and, through it, its content block) and purging its inode from
// the index. Leaving the inode mapped would let a later lookup resolve a
// freed blob.
func (fs *FileSystem) RemoveFileByName(
	ctx context.Context,
	parent record.INode,
	name record.Filename) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	logger.Tracef("fs: remove_file parent=%d name=%q", parent, name)

	prevIndexHash, x, err := fs.loadIndex(ctx)
	if err != nil {
		return err
	}

	parentDir, parentHash, err := fs.lookupDirectory(ctx, x, parent)
	if err != nil {
		return err
	}
	target, ok := parentDir.Lookup(name)
	if !ok {
		return fmt.Errorf("%q in inode %d: %w", name, parent, fserrors.ErrNotFound)
	}
	_, targetHash, err := fs.lookupFile(ctx, x, target)
	if err != nil {
		return err
	}

	if err := fs.store.DeleteRecord(ctx, targetHash); err != nil {
		return err
	}
	x.Remove(target)

	parentDir.Remove(name)
	newParentHash, err := fs.store.ReplaceRecord(ctx, parentHash, parentDir)
	if err != nil {
		return err
	}
	if err := x.Update(parent, newParentHash); err != nil {
		return err
	}

	return fs.commit(ctx, prevIndexHash, x)
}

// RemoveDirectoryByName removes an empty directory from its parent,
// deleting its record and purging its inode from the index.
func (fs *FileSystem) RemoveDirectoryByName(
	ctx context.Context,
	parent record.INode,
	name record.Filename) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	logger.Tracef("fs: remove_directory parent=%d name=%q", parent, name)

	prevIndexHash, x, err := fs.loadIndex(ctx)
	if err != nil {
		return err
	}

	parentDir, parentHash, err := fs.lookupDirectory(ctx, x, parent)
	if err != nil {
		return err
	}
	target, ok := parentDir.Lookup(name)
	if !ok {
		return fmt.Errorf("%q in inode %d: %w", name, parent, fserrors.ErrNotFound)
	}
	targetDir, targetHash, err := fs.lookupDirectory(ctx, x, target)
	if err != nil {
		return err
	}
	if len(targetDir.Children) != 0 {
		return fmt.Errorf("%q in inode %d: %w", name, parent, fserrors.ErrNotEmpty)
	}

	if err := fs.store.DeleteRecord(ctx, targetHash); err != nil {
		return err
	}
	x.Remove(target)

	parentDir.Remove(name)
	newParentHash, err := fs.store.ReplaceRecord(ctx, parentHash, parentDir)
	if err != nil {
		return err
	}
	if err := x.Update(parent, newParentHash); err != nil {
		return err
	}

	return fs.commit(ctx, prevIndexHash, x)
}

// SetAttrs overwrites all of the record's common attributes, preserving the
// variant and every non-attribute field, and returns the updated record.
func (fs *FileSystem) SetAttrs(
	ctx context.Context,
	ino record.INode,
	attrs record.CommonAttrs) (record.Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	logger.Tracef("fs: set_attrs inode=%d", ino)

	prevIndexHash, x, err := fs.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	rec, recHash, err := fs.lookupRecord(ctx, x, ino)
	if err != nil {
		return nil, err
	}
	rec.SetCommonAttrs(attrs)

	newRecHash, err := fs.store.ReplaceRecord(ctx, recHash, rec)
	if err != nil {
		return nil, err
	}
	if err := x.Update(ino, newRecHash); err != nil {
		return nil, err
	}

	if err := fs.commit(ctx, prevIndexHash, x); err != nil {
		return nil, err
	}
	return rec, nil
}
