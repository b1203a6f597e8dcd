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

// Package record defines the per-inode payloads stored in the content graph:
// file records, directory records, and the data blocks files point at.
package record

import (
	"fmt"
	"sort"

	"github.com/bridgefs/bridgefs/internal/codec"
	"github.com/bridgefs/bridgefs/internal/hashid"
)

// Record tags on the wire.
const (
	tagFile      = uint8(0)
	tagDirectory = uint8(1)
)

// A Record is the payload of one inode: either a file or a directory. The
// variant is discriminated by a tag byte in the encoding; requesting file
// semantics on a directory (or vice versa) is an explicit error at the
// engine layer.
type Record interface {
	// CommonAttrs returns the attributes shared by both variants.
	CommonAttrs() CommonAttrs

	// SetCommonAttrs overwrites all shared attributes, preserving the variant
	// and every non-attribute field.
	SetCommonAttrs(attrs CommonAttrs)

	// EncodeTo appends the tagged encoding of the record.
	EncodeTo(w *codec.Writer)

	isRecord()
}

// A FileRecord points at the data block holding the file's contents.
//
// INVARIANT: Size equals the byte length of the block addressed by
// ContentHash.
type FileRecord struct {
	ContentHash hashid.Typed[DataBlock]
	Size        uint64
	Attrs       CommonAttrs
}

var _ Record = &FileRecord{}

func (f *FileRecord) CommonAttrs() CommonAttrs {
	return f.Attrs
}

func (f *FileRecord) SetCommonAttrs(attrs CommonAttrs) {
	f.Attrs = attrs
}

func (f *FileRecord) EncodeTo(w *codec.Writer) {
	w.Uint8(tagFile)
	w.Raw(f.ContentHash.Untyped().Bytes())
	w.Uint64(f.Size)
	f.Attrs.encodeTo(w)
}

func (f *FileRecord) isRecord() {}

// A DirectoryRecord maps child names to inodes. Children are referenced via
// the inode index rather than by content hash, so a directory holds no
// outgoing content references of its own.
//
// INVARIANT: every inode in Children, and Parent, resolves in the index.
// The root directory's Parent is its own inode.
type DirectoryRecord struct {
	Children map[Filename]INode
	Attrs    CommonAttrs
	Parent   INode
}

var _ Record = &DirectoryRecord{}

// NewDirectoryRecord returns an empty directory under the supplied parent.
func NewDirectoryRecord(parent INode, attrs CommonAttrs) *DirectoryRecord {
	return &DirectoryRecord{
		Children: make(map[Filename]INode),
		Attrs:    attrs,
		Parent:   parent,
	}
}

func (d *DirectoryRecord) CommonAttrs() CommonAttrs {
	return d.Attrs
}

func (d *DirectoryRecord) SetCommonAttrs(attrs CommonAttrs) {
	d.Attrs = attrs
}

// Insert binds the name to the inode, replacing any previous binding.
func (d *DirectoryRecord) Insert(name Filename, ino INode) {
	if d.Children == nil {
		d.Children = make(map[Filename]INode)
	}
	d.Children[name] = ino
}

// Remove unbinds the name, returning the inode it named, if any.
func (d *DirectoryRecord) Remove(name Filename) (INode, bool) {
	ino, ok := d.Children[name]
	if ok {
		delete(d.Children, name)
	}
	return ino, ok
}

// Lookup returns the inode bound to the name, if any.
func (d *DirectoryRecord) Lookup(name Filename) (INode, bool) {
	ino, ok := d.Children[name]
	return ino, ok
}

// Names returns the child names in bytewise order.
func (d *DirectoryRecord) Names() []Filename {
	names := make([]Filename, 0, len(d.Children))
	for name := range d.Children {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (d *DirectoryRecord) EncodeTo(w *codec.Writer) {
	w.Uint8(tagDirectory)
	names := d.Names()
	w.Uint64(uint64(len(names)))
	for _, name := range names {
		w.String64(string(name))
		w.Uint64(uint64(d.Children[name]))
	}
	d.Attrs.encodeTo(w)
	w.Uint64(uint64(d.Parent))
}

func (d *DirectoryRecord) isRecord() {}

// Encode returns the tagged encoding of the record.
func Encode(rec Record) []byte {
	w := codec.NewWriter()
	rec.EncodeTo(w)
	return w.Bytes()
}

// Decode parses a tagged record encoding.
func Decode(p []byte) (Record, error) {
	r := codec.NewReader(p)
	var rec Record
	switch tag := r.Uint8(); {
	case r.Err() != nil:
		return nil, r.Err()

	case tag == tagFile:
		f := &FileRecord{}
		rawHash := r.Raw(hashid.Size)
		f.Size = r.Uint64()
		f.Attrs = decodeAttrs(r)
		if err := r.Finish(); err != nil {
			return nil, err
		}
		h, err := hashid.FromBytes(rawHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
		}
		f.ContentHash = hashid.TypedOf[DataBlock](h)
		rec = f

	case tag == tagDirectory:
		d := &DirectoryRecord{Children: make(map[Filename]INode)}
		n := r.Uint64()
		for i := uint64(0); i < n && r.Err() == nil; i++ {
			name := Filename(r.String64())
			ino := INode(r.Uint64())
			d.Children[name] = ino
		}
		d.Attrs = decodeAttrs(r)
		d.Parent = INode(r.Uint64())
		if err := r.Finish(); err != nil {
			return nil, err
		}
		rec = d

	default:
		return nil, fmt.Errorf("%w: unknown record tag %d", codec.ErrCorrupt, tag)
	}
	return rec, nil
}
