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

package gcsblob_test

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/bridgefs/bridgefs/internal/blob"
	"github.com/bridgefs/bridgefs/internal/blob/gcsblob"
	"github.com/bridgefs/bridgefs/internal/hashid"
	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucketName = "bridgefs-test-bucket"

func newTestBucket(t *testing.T) *storage.BucketHandle {
	t.Helper()

	server := fakestorage.NewServer(nil)
	t.Cleanup(server.Stop)
	server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: testBucketName})

	return server.Client().Bucket(testBucketName)
}

func TestPutThenGet(t *testing.T) {
	ctx := context.Background()
	s := gcsblob.NewStore(newTestBucket(t))

	content := []byte("remote payload")
	h, err := s.Put(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, hashid.Sum(content), h)

	got, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := gcsblob.NewStore(newTestBucket(t))

	h1, err := s.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	h2, err := s.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	got, err := s.Get(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, []byte("same bytes"), got)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := gcsblob.NewStore(newTestBucket(t))

	_, err := s.Get(ctx, hashid.Sum([]byte("absent")))
	assert.ErrorIs(t, err, blob.ErrMissingBlob)
}

func TestRegistryFirstReadWritesDefault(t *testing.T) {
	ctx := context.Background()
	bucket := newTestBucket(t)
	def := hashid.Sum([]byte("initial index"))

	r := gcsblob.NewRegistry(bucket, "bridgefs/root", def)

	got, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, def, got)

	// A second registry over the same slot sees the persisted value, not its
	// own default.
	other := gcsblob.NewRegistry(bucket, "bridgefs/root", hashid.Sum([]byte("other")))
	got, err = other.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, def, got)
}

func TestRegistrySetThenGet(t *testing.T) {
	ctx := context.Background()
	r := gcsblob.NewRegistry(newTestBucket(t), "bridgefs/root", hashid.Sum([]byte("default")))

	next := hashid.Sum([]byte("advanced root"))
	require.NoError(t, r.Set(ctx, next))

	got, err := r.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)
}
