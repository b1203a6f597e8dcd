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

package record

import (
	"github.com/bridgefs/bridgefs/internal/codec"
)

// A DataBlock is the opaque byte payload of a file, the leaf of the content
// graph. Whole-block rewrites are the only write path for now.
type DataBlock struct {
	Data []byte
}

// Len returns the payload length in bytes.
func (b *DataBlock) Len() int {
	return len(b.Data)
}

func (b *DataBlock) EncodeTo(w *codec.Writer) {
	w.Bytes64(b.Data)
}

// EncodeDataBlock returns the block's encoding.
func EncodeDataBlock(b *DataBlock) []byte {
	w := codec.NewWriter()
	b.EncodeTo(w)
	return w.Bytes()
}

// DecodeDataBlock parses a data block encoding.
func DecodeDataBlock(p []byte) (*DataBlock, error) {
	r := codec.NewReader(p)
	b := &DataBlock{Data: r.Bytes64()}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return b, nil
}
