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

// Package hashid defines the 32-byte content identifiers that address every
// blob in the store, along with phantom-typed views of them.
package hashid

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the length in bytes of a hash identifier.
const Size = 32

// A Hash is the BLAKE3 digest of the exact encoded byte sequence of some
// blob. Two logically identical values encode to the same bytes and therefore
// share a Hash.
type Hash [Size]byte

// Sum hashes the supplied bytes. This is the only way a Hash comes into
// existence; a Hash that was not produced by hashing stored content is a bug.
func Sum(p []byte) Hash {
	return Hash(blake3.Sum256(p))
}

// FromBytes converts a raw 32-byte slice into a Hash.
func FromBytes(p []byte) (Hash, error) {
	var h Hash
	if len(p) != Size {
		return h, fmt.Errorf("hashid: expected %d bytes, got %d", Size, len(p))
	}
	copy(h[:], p)
	return h, nil
}

// Bytes returns the raw digest.
func (h Hash) Bytes() []byte {
	return h[:]
}

// Hex returns the digest in lower-case hexadecimal, suitable for use as an
// object name in a backing store.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements fmt.Stringer using base64, matching the debug rendering
// used everywhere in logs.
func (h Hash) String() string {
	return base64.StdEncoding.EncodeToString(h[:])
}

// Compare orders hashes bytewise, returning -1, 0, or 1.
func Compare(a, b Hash) int {
	return bytes.Compare(a[:], b[:])
}

// A Typed hash is a Hash tagged at the type level with the kind of record it
// addresses. The tag is purely compile-time discipline; the stored bytes are
// identical to the untyped hash.
type Typed[T any] struct {
	raw Hash
}

// TypedOf tags an untyped hash. The conversion is total and cheap.
func TypedOf[T any](h Hash) Typed[T] {
	return Typed[T]{raw: h}
}

// Untyped discards the tag.
func (t Typed[T]) Untyped() Hash {
	return t.raw
}

// String renders like the untyped hash.
func (t Typed[T]) String() string {
	return t.raw.String()
}
