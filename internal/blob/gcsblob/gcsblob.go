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

// Package gcsblob backs the blob store and the root pointer registry with a
// GCS bucket. Blobs are stored as objects named by the hex digest of their
// contents under a fixed prefix; the root pointer is a single well-known
// object holding the raw 32-byte hash.
package gcsblob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/bridgefs/bridgefs/internal/blob"
	"github.com/bridgefs/bridgefs/internal/hashid"
	"github.com/bridgefs/bridgefs/internal/rootref"
)

// objectPrefix namespaces blob objects away from the root pointer object so
// a bucket can hold both.
const objectPrefix = "blobs/"

// Store is a blob.Store reading and writing objects in one bucket.
type Store struct {
	bucket *storage.BucketHandle
}

var _ blob.Store = &Store{}

// NewStore wraps the supplied bucket handle.
func NewStore(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

func objectName(h hashid.Hash) string {
	return objectPrefix + h.Hex()
}

// Put uploads the bytes under their digest. A blob that already exists is
// left untouched; identical content collapses to one object.
func (s *Store) Put(ctx context.Context, p []byte) (hashid.Hash, error) {
	h := hashid.Sum(p)
	obj := s.bucket.Object(objectName(h))

	_, err := obj.Attrs(ctx)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return hashid.Hash{}, fmt.Errorf("stat blob object: %w", err)
	}

	w := obj.NewWriter(ctx)
	if _, err := w.Write(p); err != nil {
		_ = w.Close()
		return hashid.Hash{}, fmt.Errorf("write blob object: %w", err)
	}
	if err := w.Close(); err != nil {
		return hashid.Hash{}, fmt.Errorf("close blob object: %w", err)
	}
	return h, nil
}

func (s *Store) Get(ctx context.Context, h hashid.Hash) ([]byte, error) {
	r, err := s.bucket.Object(objectName(h)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, blob.ErrMissingBlob
	}
	if err != nil {
		return nil, fmt.Errorf("open blob object: %w", err)
	}
	defer r.Close()

	p, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob object: %w", err)
	}
	return p, nil
}

// Registry is a rootref.Ref stored as a single object in the same bucket.
// Last writer wins; serializing writers is the deployment's concern.
type Registry struct {
	bucket *storage.BucketHandle
	name   string
	def    hashid.Hash
}

var _ rootref.Ref = &Registry{}

// NewRegistry returns a registry over the named object with the supplied
// first-read default.
func NewRegistry(bucket *storage.BucketHandle, name string, def hashid.Hash) *Registry {
	return &Registry{bucket: bucket, name: name, def: def}
}

func (r *Registry) Get(ctx context.Context) (hashid.Hash, error) {
	rd, err := r.bucket.Object(r.name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		if err := r.Set(ctx, r.def); err != nil {
			return hashid.Hash{}, err
		}
		return r.def, nil
	}
	if err != nil {
		return hashid.Hash{}, fmt.Errorf("open root object: %w", err)
	}
	defer rd.Close()

	p, err := io.ReadAll(rd)
	if err != nil {
		return hashid.Hash{}, fmt.Errorf("read root object: %w", err)
	}
	h, err := hashid.FromBytes(p)
	if err != nil {
		return hashid.Hash{}, fmt.Errorf("parse root object: %w", err)
	}
	return h, nil
}

func (r *Registry) Set(ctx context.Context, h hashid.Hash) error {
	w := r.bucket.Object(r.name).NewWriter(ctx)
	if _, err := w.Write(h.Bytes()); err != nil {
		_ = w.Close()
		return fmt.Errorf("write root object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close root object: %w", err)
	}
	return nil
}
