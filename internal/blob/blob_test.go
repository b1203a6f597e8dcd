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

package blob_test

import (
	"context"
	"testing"

	"github.com/bridgefs/bridgefs/internal/blob"
	"github.com/bridgefs/bridgefs/internal/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenGet(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMemory()

	content := []byte("hello")
	h, err := s.Put(ctx, content)
	require.NoError(t, err)
	assert.Equal(t, hashid.Sum(content), h)

	got, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMemory()

	h1, err := s.Put(ctx, []byte("same"))
	require.NoError(t, err)
	h2, err := s.Put(ctx, []byte("same"))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, s.Len())
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMemory()

	_, err := s.Get(ctx, hashid.Sum([]byte("never stored")))
	assert.ErrorIs(t, err, blob.ErrMissingBlob)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := blob.NewInMemory()

	h, err := s.Put(ctx, []byte("abc"))
	require.NoError(t, err)

	got, err := s.Get(ctx, h)
	require.NoError(t, err)
	got[0] = 'X'

	again, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
