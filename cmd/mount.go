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

package cmd

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"github.com/bridgefs/bridgefs/cfg"
	"github.com/bridgefs/bridgefs/internal/blob"
	"github.com/bridgefs/bridgefs/internal/blob/gcsblob"
	"github.com/bridgefs/bridgefs/internal/fs"
	"github.com/bridgefs/bridgefs/internal/fusefs"
	"github.com/bridgefs/bridgefs/internal/logger"
	"github.com/bridgefs/bridgefs/internal/rootref"
	"github.com/bridgefs/bridgefs/internal/store"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
)

// newEngine assembles the blob store, the root registry, and the engine for
// the configured backend. Storing the initial empty-filesystem state is
// idempotent: its blobs are content-addressed, and an existing root pointer
// takes precedence over the first-read default.
func newEngine(ctx context.Context, c *cfg.Config) (*fs.FileSystem, error) {
	clock := timeutil.RealClock()

	var blobs blob.Store
	var bucket *storage.BucketHandle

	switch c.Backend {
	case cfg.BackendMemory:
		blobs = blob.NewInMemory()

	case cfg.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		bucket = client.Bucket(c.Bucket)
		blobs = gcsblob.NewStore(bucket)

	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}

	acc := store.NewAccounting(blobs)
	def, err := fs.InitEmpty(ctx, acc, clock)
	if err != nil {
		return nil, fmt.Errorf("initializing empty filesystem: %w", err)
	}

	var ref rootref.Ref
	if bucket != nil {
		ref = gcsblob.NewRegistry(bucket, c.RootName, def)
	} else {
		ref = rootref.NewMem(def)
	}

	return fs.New(&fs.Config{
		Clock: clock,
		Root:  ref,
		Store: acc,
	}), nil
}

// mountAndServe mounts the filesystem and blocks until it is unmounted.
func mountAndServe(ctx context.Context, mountPoint string, c *cfg.Config) error {
	engine, err := newEngine(ctx, c)
	if err != nil {
		return err
	}

	server := fusefs.NewServer(&fusefs.ServerConfig{
		Engine:   engine,
		Clock:    timeutil.RealClock(),
		Uid:      c.Uid,
		Gid:      c.Gid,
		FileMode: os.FileMode(c.FileMode) & os.ModePerm,
		DirMode:  os.FileMode(c.DirMode) & os.ModePerm,
	})

	mountCfg := &fuse.MountConfig{
		FSName: c.FsName,

		// Mutations commit through the root synchronously; buffering dirty
		// pages in the kernel would reorder them.
		DisableWritebackCaching: true,
	}

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mounting: %w", err)
	}
	logger.Infof("bridgefs mounted at %s (backend=%s)", mountPoint, c.Backend)

	if err := mfs.Join(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	logger.Infof("bridgefs unmounted")
	return nil
}
