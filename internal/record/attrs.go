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
	"time"

	"github.com/bridgefs/bridgefs/internal/codec"
	"github.com/jacobsa/timeutil"
)

// Defaults for freshly constructed attributes.
const (
	DefaultPerm = uint16(0o755)
	DefaultUID  = uint32(501)
	DefaultGID  = uint32(20)
)

// CommonAttrs holds the attributes shared between files and directories.
// Only the low 12 permission bits are meaningful.
type CommonAttrs struct {
	Perm uint16
	UID  uint32
	GID  uint32

	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time
}

// DefaultAttrs returns attributes with the standard defaults and all four
// timestamps set to the clock's current time. Times are normalized to UTC so
// that a decoded copy compares equal to the original.
func DefaultAttrs(clock timeutil.Clock) CommonAttrs {
	now := clock.Now().UTC()
	return CommonAttrs{
		Perm:   DefaultPerm,
		UID:    DefaultUID,
		GID:    DefaultGID,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
	}
}

func (a *CommonAttrs) encodeTo(w *codec.Writer) {
	w.Uint16(a.Perm)
	w.Uint32(a.UID)
	w.Uint32(a.GID)
	w.Time(a.Atime)
	w.Time(a.Mtime)
	w.Time(a.Ctime)
	w.Time(a.Crtime)
}

func decodeAttrs(r *codec.Reader) CommonAttrs {
	return CommonAttrs{
		Perm:   r.Uint16(),
		UID:    r.Uint32(),
		GID:    r.Uint32(),
		Atime:  r.Time(),
		Mtime:  r.Time(),
		Ctime:  r.Time(),
		Crtime: r.Time(),
	}
}
