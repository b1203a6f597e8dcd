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

package fusefs

import (
	"errors"
	"syscall"

	"github.com/bridgefs/bridgefs/internal/blob"
	"github.com/bridgefs/bridgefs/internal/codec"
	"github.com/bridgefs/bridgefs/internal/fserrors"
	"github.com/bridgefs/bridgefs/internal/logger"
)

var errNotSupported = errors.New("operation not supported")

// errno maps engine errors to the errno surfaced to the kernel. The engine's
// error set is closed, so the mapping is total; anything outside it is an
// internal failure and surfaces as EIO.
func errno(err error) error {
	switch {
	case err == nil:
		return nil

	case errors.Is(err, fserrors.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, fserrors.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, fserrors.ErrIsADirectory):
		return syscall.EISDIR
	case errors.Is(err, fserrors.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, fserrors.ErrExists):
		return syscall.EEXIST

	case errors.Is(err, errNotSupported):
		return syscall.ENOSYS

	case errors.Is(err, blob.ErrMissingBlob), errors.Is(err, codec.ErrCorrupt):
		logger.Errorf("fusefs: invariant violation: %v", err)
		return syscall.EIO

	default:
		logger.Errorf("fusefs: internal error: %v", err)
		return syscall.EIO
	}
}
