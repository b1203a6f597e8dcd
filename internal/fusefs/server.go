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

// Package fusefs adapts the engine to the kernel filesystem callback
// surface. It owns the translation from engine records to kernel attribute
// structs and from the engine's closed error set to errno values; the
// engine itself stays POSIX-free.
package fusefs

import (
	"context"
	"os"
	"time"

	"github.com/bridgefs/bridgefs/internal/fs"
	"github.com/bridgefs/bridgefs/internal/logger"
	"github.com/bridgefs/bridgefs/internal/record"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
)

// ServerConfig supplies the engine and presentation overrides.
type ServerConfig struct {
	// The operations engine being exported.
	Engine *fs.FileSystem

	// A clock used for timestamps on newly created records.
	Clock timeutil.Clock

	// Ownership presented to the kernel. Negative values present the uid/gid
	// stored in each record.
	Uid int64
	Gid int64

	// Permission bits presented to the kernel. Zero presents the bits stored
	// in each record.
	FileMode os.FileMode
	DirMode  os.FileMode
}

// NewServer creates a fuse server exporting the supplied engine.
func NewServer(cfg *ServerConfig) fuse.Server {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}
	return fuseutil.NewFileSystemServer(&server{
		engine:   cfg.Engine,
		clock:    clock,
		uid:      cfg.Uid,
		gid:      cfg.Gid,
		fileMode: cfg.FileMode,
		dirMode:  cfg.DirMode,
	})
}

type server struct {
	fuseutil.NotImplementedFileSystem

	engine *fs.FileSystem
	clock  timeutil.Clock

	uid      int64
	gid      int64
	fileMode os.FileMode
	dirMode  os.FileMode
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// permBits extracts the low 12 permission bits from an os.FileMode.
func permBits(m os.FileMode) uint16 {
	p := uint16(m.Perm())
	if m&os.ModeSetuid != 0 {
		p |= 0o4000
	}
	if m&os.ModeSetgid != 0 {
		p |= 0o2000
	}
	if m&os.ModeSticky != 0 {
		p |= 0o1000
	}
	return p
}

func modeFromPerm(p uint16) os.FileMode {
	m := os.FileMode(p & 0o777)
	if p&0o4000 != 0 {
		m |= os.ModeSetuid
	}
	if p&0o2000 != 0 {
		m |= os.ModeSetgid
	}
	if p&0o1000 != 0 {
		m |= os.ModeSticky
	}
	return m
}

// inodeAttributes converts a record's attributes to the kernel's struct,
// applying the configured presentation overrides.
func (s *server) inodeAttributes(rec record.Record) fuseops.InodeAttributes {
	common := rec.CommonAttrs()

	attrs := fuseops.InodeAttributes{
		Uid:    common.UID,
		Gid:    common.GID,
		Atime:  common.Atime,
		Mtime:  common.Mtime,
		Ctime:  common.Ctime,
		Crtime: common.Crtime,
	}
	if s.uid >= 0 {
		attrs.Uid = uint32(s.uid)
	}
	if s.gid >= 0 {
		attrs.Gid = uint32(s.gid)
	}

	switch rec := rec.(type) {
	case *record.FileRecord:
		attrs.Size = rec.Size
		attrs.Nlink = 1
		attrs.Mode = modeFromPerm(common.Perm)
		if s.fileMode != 0 {
			attrs.Mode = s.fileMode
		}

	case *record.DirectoryRecord:
		attrs.Size = uint64(len(rec.Children))
		attrs.Nlink = 2
		attrs.Mode = modeFromPerm(common.Perm)
		if s.dirMode != 0 {
			attrs.Mode = s.dirMode
		}
		attrs.Mode |= os.ModeDir
	}

	return attrs
}

// Attribute and entry responses get a short kernel-cache lifetime. The
// engine is the only writer for this mount, but another engine elsewhere may
// advance the shared root pointer under us.
func (s *server) expiration() time.Time {
	return s.clock.Now().Add(time.Minute)
}

func (s *server) childEntry(ino record.INode, rec record.Record) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:                fuseops.InodeID(ino),
		Attributes:           s.inodeAttributes(rec),
		AttributesExpiration: s.expiration(),
		EntryExpiration:      s.expiration(),
	}
}

// newAttrs builds the attributes for a freshly created record from the
// kernel-supplied mode.
func (s *server) newAttrs(mode os.FileMode) record.CommonAttrs {
	attrs := record.DefaultAttrs(s.clock)
	attrs.Perm = permBits(mode)
	if s.uid >= 0 {
		attrs.UID = uint32(s.uid)
	}
	if s.gid >= 0 {
		attrs.GID = uint32(s.gid)
	}
	return attrs
}

func direntType(rec record.Record) fuseutil.DirentType {
	if _, ok := rec.(*record.DirectoryRecord); ok {
		return fuseutil.DT_Directory
	}
	return fuseutil.DT_File
}

////////////////////////////////////////////////////////////////////////
// Callbacks
////////////////////////////////////////////////////////////////////////

func (s *server) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) error {
	// The store has no meaningful capacity; report a large one so tools that
	// check free space before writing do not refuse.
	op.BlockSize = 4096
	op.Blocks = 1 << 32
	op.BlocksFree = op.Blocks
	op.BlocksAvailable = op.Blocks
	op.IoSize = 1 << 20
	return nil
}

func (s *server) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	ino, rec, err := s.engine.LookUpByName(
		ctx, record.INode(op.Parent), record.Filename(op.Name))
	if err != nil {
		return errno(err)
	}

	op.Entry = s.childEntry(ino, rec)
	return nil
}

func (s *server) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	rec, err := s.engine.LookUpByINode(ctx, record.INode(op.Inode))
	if err != nil {
		return errno(err)
	}

	op.Attributes = s.inodeAttributes(rec)
	op.AttributesExpiration = s.expiration()
	return nil
}

func (s *server) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) error {
	rec, err := s.engine.LookUpByINode(ctx, record.INode(op.Inode))
	if err != nil {
		return errno(err)
	}

	// Resizing is not supported; tolerate a no-op resize to the current
	// length, which some write paths issue.
	if op.Size != nil {
		f, ok := rec.(*record.FileRecord)
		if !ok || *op.Size != f.Size {
			return errno(errNotSupported)
		}
	}

	attrs := rec.CommonAttrs()
	if op.Mode != nil {
		attrs.Perm = permBits(*op.Mode)
	}
	if op.Atime != nil {
		attrs.Atime = *op.Atime
	}
	if op.Mtime != nil {
		attrs.Mtime = *op.Mtime
	}
	attrs.Ctime = s.clock.Now().UTC()

	updated, err := s.engine.SetAttrs(ctx, record.INode(op.Inode), attrs)
	if err != nil {
		return errno(err)
	}

	op.Attributes = s.inodeAttributes(updated)
	op.AttributesExpiration = s.expiration()
	return nil
}

func (s *server) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) error {
	// Inode lifetimes are owned by the index, not the kernel's lookup counts.
	return nil
}

func (s *server) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp) error {
	ino, rec, err := s.engine.CreateDirectory(
		ctx, record.INode(op.Parent), record.Filename(op.Name), s.newAttrs(op.Mode))
	if err != nil {
		return errno(err)
	}

	op.Entry = s.childEntry(ino, rec)
	return nil
}

func (s *server) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	ino, rec, err := s.engine.CreateFile(
		ctx, record.INode(op.Parent), record.Filename(op.Name), s.newAttrs(op.Mode))
	if err != nil {
		return errno(err)
	}

	op.Entry = s.childEntry(ino, rec)
	return nil
}

func (s *server) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp) error {
	err := s.engine.RemoveDirectoryByName(
		ctx, record.INode(op.Parent), record.Filename(op.Name))
	return errno(err)
}

func (s *server) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) error {
	err := s.engine.RemoveFileByName(
		ctx, record.INode(op.Parent), record.Filename(op.Name))
	return errno(err)
}

func (s *server) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	_, err := s.engine.LookUpDirectoryByINode(ctx, record.INode(op.Inode))
	return errno(err)
}

func (s *server) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	entries, err := s.engine.ListDirectory(ctx, record.INode(op.Inode))
	if err != nil {
		return errno(err)
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return nil
	}
	for i, entry := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(entry.INode),
			Name:   string(entry.Name),
			Type:   direntType(entry.Record),
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (s *server) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func (s *server) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	_, err := s.engine.LookUpFileByINode(ctx, record.INode(op.Inode))
	return errno(err)
}

func (s *server) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	data, err := s.engine.ReadFile(
		ctx, record.INode(op.Inode), op.Offset, int64(len(op.Dst)))
	if err != nil {
		return errno(err)
	}

	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (s *server) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	n, err := s.engine.WriteFile(ctx, record.INode(op.Inode), op.Offset, op.Data)
	if err != nil {
		return errno(err)
	}
	if n != len(op.Data) {
		logger.Warnf("fusefs: short write on inode %d: %d of %d bytes", op.Inode, n, len(op.Data))
	}
	return nil
}

func (s *server) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) error {
	// Every mutation commits through the root before returning; there is
	// nothing buffered to flush.
	return nil
}

func (s *server) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) error {
	return nil
}

func (s *server) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) error {
	return nil
}
