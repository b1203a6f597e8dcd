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

// Package fserrors defines the closed error taxonomy surfaced by the
// filesystem core. The driver owns the mapping to POSIX errno values, so the
// set here stays language-neutral.
package fserrors

import "errors"

var (
	// ErrNotFound: no such inode, no such name in a directory, or a missing
	// root slot with no default.
	ErrNotFound = errors.New("not found")

	// ErrNotADirectory: the operation requires a directory and the target is
	// a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory: the operation requires a file and the target is a
	// directory.
	ErrIsADirectory = errors.New("is a directory")

	// ErrNotEmpty: directory removal refused because it still has children.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrExists: create refused because the parent already contains the name.
	ErrExists = errors.New("already exists")
)
