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

package fs_test

import (
	"context"
	"testing"
	"time"

	"github.com/bridgefs/bridgefs/internal/blob"
	"github.com/bridgefs/bridgefs/internal/fs"
	"github.com/bridgefs/bridgefs/internal/fserrors"
	"github.com/bridgefs/bridgefs/internal/hashid"
	"github.com/bridgefs/bridgefs/internal/index"
	"github.com/bridgefs/bridgefs/internal/record"
	"github.com/bridgefs/bridgefs/internal/rootref"
	"github.com/bridgefs/bridgefs/internal/store"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMain(m *testing.M) {
	syncutil.EnableInvariantChecking()
	m.Run()
}

type FSTest struct {
	suite.Suite

	ctx   context.Context
	clock *timeutil.SimulatedClock
	blobs *blob.InMemory
	acc   *store.Accounting
	root  *rootref.Mem
	fs    *fs.FileSystem
}

func TestFSSuite(t *testing.T) {
	suite.Run(t, new(FSTest))
}

func (t *FSTest) SetupTest() {
	t.ctx = context.Background()

	t.clock = &timeutil.SimulatedClock{}
	t.clock.SetTime(time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC))

	t.blobs = blob.NewInMemory()
	t.acc = store.NewAccounting(t.blobs)

	def, err := fs.InitEmpty(t.ctx, t.acc, t.clock)
	require.NoError(t.T(), err)

	t.root = rootref.NewMem(def)
	t.fs = fs.New(&fs.Config{
		Clock: t.clock,
		Root:  t.root,
		Store: t.acc,
	})
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (t *FSTest) rootHash() hashid.Hash {
	h, err := t.root.Get(t.ctx)
	require.NoError(t.T(), err)
	return h
}

func (t *FSTest) currentIndex() *index.Index {
	x, err := t.acc.LoadIndex(t.ctx, hashid.TypedOf[index.Index](t.rootHash()))
	require.NoError(t.T(), err)
	return x
}

func (t *FSTest) entryNames(entries []fs.DirEntry) []record.Filename {
	names := make([]record.Filename, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Walk the current snapshot and assert that every hash resolves, and that
// every file's block length matches its recorded size.
func (t *FSTest) assertNoDanglingHashes() {
	x := t.currentIndex()
	for _, ino := range x.INodes() {
		h, ok := x.Lookup(ino)
		require.True(t.T(), ok)

		rec, err := t.acc.LoadRecord(t.ctx, h)
		require.NoError(t.T(), err, "inode %d", ino)

		if f, ok := rec.(*record.FileRecord); ok {
			b, err := t.acc.LoadDataBlock(t.ctx, f.ContentHash)
			require.NoError(t.T(), err, "inode %d content", ino)
			assert.Equal(t.T(), f.Size, uint64(b.Len()), "inode %d size", ino)
		}
	}
}

func (t *FSTest) createFile(parent record.INode, name string) record.INode {
	ino, _, err := t.fs.CreateFile(
		t.ctx, parent, record.Filename(name), record.DefaultAttrs(t.clock))
	require.NoError(t.T(), err)
	return ino
}

func (t *FSTest) createDirectory(parent record.INode, name string) record.INode {
	ino, _, err := t.fs.CreateDirectory(
		t.ctx, parent, record.Filename(name), record.DefaultAttrs(t.clock))
	require.NoError(t.T(), err)
	return ino
}

////////////////////////////////////////////////////////////////////////
// Scenarios
////////////////////////////////////////////////////////////////////////

func (t *FSTest) TestEmptyRootListing() {
	entries, err := t.fs.ListDirectory(t.ctx, record.RootINode)
	require.NoError(t.T(), err)

	require.Len(t.T(), entries, 2)
	assert.Equal(t.T(), record.Dot, entries[0].Name)
	assert.Equal(t.T(), record.DotDot, entries[1].Name)

	// Both synthetic entries resolve to the root directory itself.
	for _, e := range entries {
		assert.Equal(t.T(), record.RootINode, e.INode)
		d, ok := e.Record.(*record.DirectoryRecord)
		require.True(t.T(), ok)
		assert.Equal(t.T(), record.RootINode, d.Parent)
	}
}

func (t *FSTest) TestCreateThenLookUp() {
	ino := t.createFile(record.RootINode, "a")
	assert.Equal(t.T(), record.FirstChildINode, ino)

	childINode, rec, err := t.fs.LookUpByName(t.ctx, record.RootINode, "a")
	require.NoError(t.T(), err)
	assert.Equal(t.T(), ino, childINode)

	f, ok := rec.(*record.FileRecord)
	require.True(t.T(), ok)
	assert.EqualValues(t.T(), 0, f.Size)

	entries, err := t.fs.ListDirectory(t.ctx, record.RootINode)
	require.NoError(t.T(), err)
	assert.Equal(
		t.T(),
		[]record.Filename{"a", record.Dot, record.DotDot},
		t.entryNames(entries))

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestWriteThenRead() {
	ino := t.createFile(record.RootINode, "a")

	n, err := t.fs.WriteFile(t.ctx, ino, 0, []byte("Hello, BridgeFS!"))
	require.NoError(t.T(), err)
	assert.Equal(t.T(), 16, n)

	data, err := t.fs.ReadFile(t.ctx, ino, 0, 1024)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), []byte("Hello, BridgeFS!"), data)

	f, err := t.fs.LookUpFileByINode(t.ctx, ino)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 16, f.Size)

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestSparseExtendingWrite() {
	ino := t.createFile(record.RootINode, "sparse")

	n, err := t.fs.WriteFile(t.ctx, ino, 5, []byte("abc"))
	require.NoError(t.T(), err)
	assert.Equal(t.T(), 3, n)

	data, err := t.fs.ReadFile(t.ctx, ino, 0, 1024)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), []byte{0, 0, 0, 0, 0, 'a', 'b', 'c'}, data)

	f, err := t.fs.LookUpFileByINode(t.ctx, ino)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 8, f.Size)

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestWriteUpdatesTimes() {
	ino := t.createFile(record.RootINode, "a")

	before, err := t.fs.LookUpFileByINode(t.ctx, ino)
	require.NoError(t.T(), err)

	t.clock.AdvanceTime(3 * time.Second)
	_, err = t.fs.WriteFile(t.ctx, ino, 0, []byte("x"))
	require.NoError(t.T(), err)

	after, err := t.fs.LookUpFileByINode(t.ctx, ino)
	require.NoError(t.T(), err)
	assert.True(t.T(), after.Attrs.Mtime.After(before.Attrs.Mtime))
	assert.True(t.T(), after.Attrs.Ctime.After(before.Attrs.Ctime))
	assert.True(t.T(), after.Attrs.Crtime.Equal(before.Attrs.Crtime))
}

func (t *FSTest) TestNestedDirectory() {
	dirINode := t.createDirectory(record.RootINode, "d")
	assert.EqualValues(t.T(), 2, dirINode)

	fileINode := t.createFile(dirINode, "f")
	assert.EqualValues(t.T(), 3, fileINode)

	_, err := t.fs.WriteFile(t.ctx, fileINode, 0, []byte("File under directory"))
	require.NoError(t.T(), err)

	data, err := t.fs.ReadFile(t.ctx, fileINode, 0, 1024)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), []byte("File under directory"), data)

	entries, err := t.fs.ListDirectory(t.ctx, dirINode)
	require.NoError(t.T(), err)
	require.Len(t.T(), entries, 3)
	assert.Equal(t.T(), record.Filename("f"), entries[0].Name)

	// The ".." of the child directory resolves to the root.
	assert.Equal(t.T(), record.RootINode, entries[2].INode)

	// A non-empty directory refuses removal.
	err = t.fs.RemoveDirectoryByName(t.ctx, record.RootINode, "d")
	assert.ErrorIs(t.T(), err, fserrors.ErrNotEmpty)

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestRemoveThenRecreate() {
	ino := t.createFile(record.RootINode, "x")
	assert.EqualValues(t.T(), 2, ino)

	err := t.fs.RemoveFileByName(t.ctx, record.RootINode, "x")
	require.NoError(t.T(), err)

	_, _, err = t.fs.LookUpByName(t.ctx, record.RootINode, "x")
	assert.ErrorIs(t.T(), err, fserrors.ErrNotFound)

	// The removed inode is purged from the index, not merely unnamed.
	_, err = t.fs.LookUpByINode(t.ctx, ino)
	assert.ErrorIs(t.T(), err, fserrors.ErrNotFound)

	// Inode 2 is not reused.
	recreated := t.createFile(record.RootINode, "x")
	assert.EqualValues(t.T(), 3, recreated)

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestDuplicateCreate() {
	t.createFile(record.RootINode, "x")

	_, _, err := t.fs.CreateFile(
		t.ctx, record.RootINode, "x", record.DefaultAttrs(t.clock))
	assert.ErrorIs(t.T(), err, fserrors.ErrExists)

	_, _, err = t.fs.CreateDirectory(
		t.ctx, record.RootINode, "x", record.DefaultAttrs(t.clock))
	assert.ErrorIs(t.T(), err, fserrors.ErrExists)
}

func (t *FSTest) TestVariantErrors() {
	ino := t.createFile(record.RootINode, "x")
	assert.EqualValues(t.T(), 2, ino)

	err := t.fs.RemoveDirectoryByName(t.ctx, record.RootINode, "x")
	assert.ErrorIs(t.T(), err, fserrors.ErrNotADirectory)

	_, err = t.fs.ReadFile(t.ctx, record.RootINode, 0, 10)
	assert.ErrorIs(t.T(), err, fserrors.ErrIsADirectory)

	err = t.fs.RemoveFileByName(t.ctx, record.RootINode, "x")
	require.NoError(t.T(), err)
}

func (t *FSTest) TestRemoveFileOnDirectory() {
	t.createDirectory(record.RootINode, "d")

	err := t.fs.RemoveFileByName(t.ctx, record.RootINode, "d")
	assert.ErrorIs(t.T(), err, fserrors.ErrIsADirectory)
}

func (t *FSTest) TestSetAttrsPreservesContent() {
	ino := t.createFile(record.RootINode, "a")
	_, err := t.fs.WriteFile(t.ctx, ino, 0, []byte("Hello, BridgeFS!"))
	require.NoError(t.T(), err)

	f, err := t.fs.LookUpFileByINode(t.ctx, ino)
	require.NoError(t.T(), err)

	attrs := f.Attrs
	attrs.UID = 1000
	attrs.GID = 1000
	attrs.Perm = 0o644
	updated, err := t.fs.SetAttrs(t.ctx, ino, attrs)
	require.NoError(t.T(), err)

	common := updated.CommonAttrs()
	assert.EqualValues(t.T(), 1000, common.UID)
	assert.EqualValues(t.T(), 1000, common.GID)
	assert.EqualValues(t.T(), 0o644, common.Perm)

	data, err := t.fs.ReadFile(t.ctx, ino, 0, 1024)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), []byte("Hello, BridgeFS!"), data)

	reloaded, err := t.fs.LookUpByINode(t.ctx, ino)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), common, reloaded.CommonAttrs())

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestSetAttrsOnDirectory() {
	ino := t.createDirectory(record.RootINode, "d")

	attrs := record.DefaultAttrs(t.clock)
	attrs.Perm = 0o700
	updated, err := t.fs.SetAttrs(t.ctx, ino, attrs)
	require.NoError(t.T(), err)

	d, ok := updated.(*record.DirectoryRecord)
	require.True(t.T(), ok)
	assert.Equal(t.T(), record.RootINode, d.Parent)
	assert.EqualValues(t.T(), 0o700, d.Attrs.Perm)
}

////////////////////////////////////////////////////////////////////////
// Universal invariants
////////////////////////////////////////////////////////////////////////

func (t *FSTest) TestINodeMonotonicity() {
	var allocated []record.INode
	allocated = append(allocated, t.createFile(record.RootINode, "a"))
	allocated = append(allocated, t.createDirectory(record.RootINode, "d"))
	allocated = append(allocated, t.createFile(allocated[1], "b"))

	require.NoError(t.T(), t.fs.RemoveFileByName(t.ctx, record.RootINode, "a"))
	allocated = append(allocated, t.createFile(record.RootINode, "c"))

	for i := 1; i < len(allocated); i++ {
		assert.Greater(t.T(), allocated[i], allocated[i-1])
	}
}

func (t *FSTest) TestFailedOpsDoNotAdvanceRoot() {
	t.createFile(record.RootINode, "x")
	before := t.rootHash()

	cases := []func() error{
		func() error {
			_, _, err := t.fs.CreateFile(
				t.ctx, record.RootINode, "x", record.DefaultAttrs(t.clock))
			return err
		},
		func() error {
			_, _, err := t.fs.CreateFile(
				t.ctx, record.INode(99), "y", record.DefaultAttrs(t.clock))
			return err
		},
		func() error { return t.fs.RemoveFileByName(t.ctx, record.RootINode, "missing") },
		func() error { return t.fs.RemoveDirectoryByName(t.ctx, record.RootINode, "x") },
		func() error {
			_, err := t.fs.WriteFile(t.ctx, record.RootINode, 0, []byte("z"))
			return err
		},
		func() error {
			_, err := t.fs.SetAttrs(t.ctx, record.INode(99), record.DefaultAttrs(t.clock))
			return err
		},
	}
	for i, c := range cases {
		require.Error(t.T(), c(), "case %d", i)
		assert.Equal(t.T(), before, t.rootHash(), "case %d", i)
	}
}

func (t *FSTest) TestReadClamps() {
	ino := t.createFile(record.RootINode, "a")
	_, err := t.fs.WriteFile(t.ctx, ino, 0, []byte("abcdef"))
	require.NoError(t.T(), err)

	// Offset beyond the end yields empty bytes, not an error.
	data, err := t.fs.ReadFile(t.ctx, ino, 100, 10)
	require.NoError(t.T(), err)
	assert.Empty(t.T(), data)

	// An over-large size clamps to the end.
	data, err = t.fs.ReadFile(t.ctx, ino, 4, 1000)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), []byte("ef"), data)

	data, err = t.fs.ReadFile(t.ctx, ino, 1, 3)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), []byte("bcd"), data)
}

func (t *FSTest) TestOverwriteMiddle() {
	ino := t.createFile(record.RootINode, "a")
	_, err := t.fs.WriteFile(t.ctx, ino, 0, []byte("abcdef"))
	require.NoError(t.T(), err)

	n, err := t.fs.WriteFile(t.ctx, ino, 2, []byte("XY"))
	require.NoError(t.T(), err)
	assert.Equal(t.T(), 2, n)

	data, err := t.fs.ReadFile(t.ctx, ino, 0, 1024)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), []byte("abXYef"), data)

	f, err := t.fs.LookUpFileByINode(t.ctx, ino)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 6, f.Size)
}

func (t *FSTest) TestRemovedFileContentUnreferenced() {
	ino := t.createFile(record.RootINode, "x")
	_, err := t.fs.WriteFile(t.ctx, ino, 0, []byte("unique content for x"))
	require.NoError(t.T(), err)

	f, err := t.fs.LookUpFileByINode(t.ctx, ino)
	require.NoError(t.T(), err)
	contentHash := f.ContentHash.Untyped()
	assert.True(t.T(), t.acc.Manifest().Has(contentHash))

	require.NoError(t.T(), t.fs.RemoveFileByName(t.ctx, record.RootINode, "x"))
	assert.False(t.T(), t.acc.Manifest().Has(contentHash))

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestSharedContentSurvivesSingleRemoval() {
	a := t.createFile(record.RootINode, "a")
	b := t.createFile(record.RootINode, "b")

	payload := []byte("identical bytes")
	_, err := t.fs.WriteFile(t.ctx, a, 0, payload)
	require.NoError(t.T(), err)
	_, err = t.fs.WriteFile(t.ctx, b, 0, payload)
	require.NoError(t.T(), err)

	// Structural sharing: both files address one block.
	fa, err := t.fs.LookUpFileByINode(t.ctx, a)
	require.NoError(t.T(), err)
	fb, err := t.fs.LookUpFileByINode(t.ctx, b)
	require.NoError(t.T(), err)
	require.Equal(t.T(), fa.ContentHash, fb.ContentHash)
	assert.EqualValues(t.T(), 2, t.acc.Manifest().Count(fa.ContentHash.Untyped()))

	require.NoError(t.T(), t.fs.RemoveFileByName(t.ctx, record.RootINode, "a"))

	data, err := t.fs.ReadFile(t.ctx, b, 0, 1024)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), payload, data)
	assert.EqualValues(t.T(), 1, t.acc.Manifest().Count(fb.ContentHash.Untyped()))

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestRemoveEmptyDirectory() {
	ino := t.createDirectory(record.RootINode, "d")

	require.NoError(t.T(), t.fs.RemoveDirectoryByName(t.ctx, record.RootINode, "d"))

	_, err := t.fs.LookUpByINode(t.ctx, ino)
	assert.ErrorIs(t.T(), err, fserrors.ErrNotFound)

	entries, err := t.fs.ListDirectory(t.ctx, record.RootINode)
	require.NoError(t.T(), err)
	assert.Len(t.T(), entries, 2)

	t.assertNoDanglingHashes()
}

func (t *FSTest) TestLookUpVariants() {
	file := t.createFile(record.RootINode, "f")
	dir := t.createDirectory(record.RootINode, "d")

	_, err := t.fs.LookUpFileByINode(t.ctx, dir)
	assert.ErrorIs(t.T(), err, fserrors.ErrIsADirectory)

	_, err = t.fs.LookUpDirectoryByINode(t.ctx, file)
	assert.ErrorIs(t.T(), err, fserrors.ErrNotADirectory)

	_, err = t.fs.LookUpByINode(t.ctx, record.INode(42))
	assert.ErrorIs(t.T(), err, fserrors.ErrNotFound)
}

func (t *FSTest) TestIdenticalFilesShareRecordStorage() {
	t.createFile(record.RootINode, "a")
	blobsBefore := t.blobs.Len()

	// A second empty file with identical attributes stores no new blobs
	// beyond the rewritten parent and index: its block and record bytes are
	// identical to the first file's.
	t.createFile(record.RootINode, "b")
	assert.Equal(t.T(), blobsBefore+2, t.blobs.Len())
}
