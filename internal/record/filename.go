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

// A Filename is a non-empty byte sequence with no interpretation of
// encoding; equality and ordering are bytewise. The Go string type is used
// purely as an immutable byte container.
type Filename string

// Reserved synthetic names, used only in directory listing responses.
const (
	Dot    Filename = "."
	DotDot Filename = ".."
)

// An INode is a 64-bit stable identifier for a file or directory within one
// lineage of index snapshots.
type INode uint64

const (
	// RootINode is the reserved inode of the root directory.
	RootINode INode = 1

	// FirstChildINode is the first allocatable inode. Inodes count up from
	// here and are never reused within an index lineage.
	FirstChildINode INode = 2
)
