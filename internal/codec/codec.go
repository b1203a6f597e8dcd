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

// Package codec provides the deterministic binary encoding shared by every
// stored record type.
//
// The format is fixed-width little-endian integers and length-prefixed byte
// strings, with no headers or versioning inside blobs. Determinism is a hard
// requirement: the same logical value must serialize to the same bytes on
// every implementation, because blobs are addressed by the hash of their
// encoding. Anything with iteration-order freedom (maps) must be written in
// sorted order by the caller.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is returned when fetched bytes fail to decode as the expected
// record type. Under a correct implementation this never happens; callers
// treat it as fatal to the operation.
var ErrCorrupt = errors.New("codec: corrupt blob")

// A Writer accumulates the encoding of one value.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded value.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Bytes64 writes a length-prefixed byte string.
func (w *Writer) Bytes64(p []byte) {
	w.Uint64(uint64(len(p)))
	w.buf = append(w.buf, p...)
}

// String64 writes a length-prefixed string.
func (w *Writer) String64(s string) {
	w.Uint64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// Raw writes fixed-width bytes with no length prefix. Used for digests,
// whose width is part of the schema.
func (w *Writer) Raw(p []byte) {
	w.buf = append(w.buf, p...)
}

// Time writes a timestamp as seconds plus nanoseconds since the Unix epoch.
func (w *Writer) Time(t time.Time) {
	w.Uint64(uint64(t.Unix()))
	w.Uint32(uint32(t.Nanosecond()))
}

// A Reader consumes the encoding of one value. Errors latch: after the first
// failure every subsequent read returns the zero value, and Err reports the
// failure. This keeps decode methods free of per-field error plumbing.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader wraps the supplied encoded bytes.
func NewReader(p []byte) *Reader {
	return &Reader{buf: p}
}

// Err returns the first failure encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Finish verifies that the value consumed the input exactly.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf)-r.off)
	}
	return nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: truncated input", ErrCorrupt)
		return nil
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

func (r *Reader) Uint8() uint8 {
	p := r.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *Reader) Uint16() uint16 {
	p := r.take(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *Reader) Uint32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *Reader) Uint64() uint64 {
	p := r.take(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

// Bytes64 reads a length-prefixed byte string into freshly allocated memory.
func (r *Reader) Bytes64() []byte {
	n := r.Uint64()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.buf)-r.off) {
		r.err = fmt.Errorf("%w: length prefix %d exceeds input", ErrCorrupt, n)
		return nil
	}
	p := r.take(int(n))
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// String64 reads a length-prefixed string.
func (r *Reader) String64() string {
	return string(r.Bytes64())
}

// Raw reads exactly n bytes with no length prefix.
func (r *Reader) Raw(n int) []byte {
	p := r.take(n)
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// Time reads a timestamp written by Writer.Time. The result is in UTC; the
// encoding carries no zone.
func (r *Reader) Time() time.Time {
	sec := r.Uint64()
	nsec := r.Uint32()
	if r.err != nil {
		return time.Time{}
	}
	return time.Unix(int64(sec), int64(nsec)).UTC()
}
