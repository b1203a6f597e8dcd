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

// Package cfg holds the mount configuration: the flag surface, the yaml
// config-file schema, and validation.
package cfg

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backend names accepted by --backend.
const (
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

type Config struct {
	// Which blob store and root registry to mount against.
	Backend string `yaml:"backend"`

	// GCS bucket holding blobs and the root pointer. Required for the gcs
	// backend.
	Bucket string `yaml:"bucket"`

	// Name of the root pointer object within the bucket.
	RootName string `yaml:"root-name"`

	// Ownership and permission overrides applied when presenting inodes to
	// the kernel. Negative uid/gid and zero modes mean "use the values stored
	// in the records".
	Uid      int64 `yaml:"uid"`
	Gid      int64 `yaml:"gid"`
	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`

	FsName string `yaml:"fs-name"`

	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	// "text" or "json".
	Format string `yaml:"format"`
}

// BindFlags declares the flag surface and binds each flag to its viper key.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.StringP("backend", "", BackendMemory, "Storage backend: memory or gcs.")
	flagSet.StringP("bucket", "", "", "GCS bucket holding blobs and the root pointer.")
	flagSet.StringP("root-name", "", "bridgefs/root", "Object name of the root pointer within the bucket.")
	flagSet.Int64P("uid", "", -1, "UID to present for all inodes. -1 uses stored values.")
	flagSet.Int64P("gid", "", -1, "GID to present for all inodes. -1 uses stored values.")
	flagSet.StringP("file-mode", "", "0", "Octal permission bits to present for files. 0 uses stored values.")
	flagSet.StringP("dir-mode", "", "0", "Octal permission bits to present for directories. 0 uses stored values.")
	flagSet.StringP("fs-name", "", "bridgefs", "Filesystem name reported to the kernel.")
	flagSet.StringP("log-severity", "", "INFO", "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	flagSet.StringP("log-format", "", "text", "Log output format: text or json.")

	bindings := map[string]string{
		"backend":          "backend",
		"bucket":           "bucket",
		"root-name":        "root-name",
		"uid":              "uid",
		"gid":              "gid",
		"file-mode":        "file-mode",
		"dir-mode":         "dir-mode",
		"fs-name":          "fs-name",
		"logging.severity": "log-severity",
		"logging.format":   "log-format",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flagSet.Lookup(flag)); err != nil {
			return fmt.Errorf("bind %q: %w", flag, err)
		}
	}
	return nil
}

// Validate rejects configurations no mount can serve.
func Validate(c *Config) error {
	switch c.Backend {
	case BackendMemory:
	case BackendGCS:
		if c.Bucket == "" {
			return fmt.Errorf("the gcs backend requires --bucket")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if err := c.Logging.Severity.validate(); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
