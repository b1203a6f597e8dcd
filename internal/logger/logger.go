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

// Package logger provides the process-wide structured logger. All logging
// in the module goes through the package-level severity functions.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace sits below slog's built-in debug level; slog has no trace of
// its own.
const LevelTrace = slog.Level(-8)

// LevelOff disables all output.
const LevelOff = slog.Level(12)

var (
	programLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(newHandler(os.Stderr, "text", programLevel))
)

func levelNames() map[slog.Level]string {
	return map[slog.Level]string{
		LevelTrace:      "TRACE",
		slog.LevelDebug: "DEBUG",
		slog.LevelInfo:  "INFO",
		slog.LevelWarn:  "WARNING",
		slog.LevelError: "ERROR",
	}
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			a.Key = "severity"
			if name, ok := levelNames()[a.Value.Any().(slog.Level)]; ok {
				a.Value = slog.StringValue(name)
			}
			return a
		},
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup reconfigures the process logger. Severity is one of TRACE, DEBUG,
// INFO, WARNING, ERROR, OFF (case-insensitive); format is "text" or "json".
func Setup(w io.Writer, format, severity string) {
	setLoggingLevel(severity, programLevel)
	defaultLogger = slog.New(newHandler(w, format, programLevel))
}

func setLoggingLevel(severity string, level *slog.LevelVar) {
	switch strings.ToUpper(severity) {
	case "TRACE":
		level.Set(LevelTrace)
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	case "OFF":
		level.Set(LevelOff)
	default:
		level.Set(slog.LevelInfo)
	}
}

func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}
