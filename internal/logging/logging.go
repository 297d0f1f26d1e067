// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the zap loggers used across the migrator.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level enumerates supported logging granularities.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format enumerates supported encodings.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var levels = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

var encodings = map[Format]string{
	FormatConsole: "console",
	FormatJSON:    "json",
}

// Standard field keys, so log lines for one record can be grepped together.
const (
	FieldSourceID      = "source_id"
	FieldDestinationID = "destination_id"
	FieldState         = "state"
	FieldStep          = "step"
)

// New builds a logger writing to stderr. Level and format are matched
// case-insensitively; empty values fall back to info and console.
func New(level, format string) (*zap.Logger, error) {
	lvl := Level(strings.ToLower(strings.TrimSpace(level)))
	if lvl == "" {
		lvl = LevelInfo
	}
	zapLevel, ok := levels[lvl]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", level)
	}

	f := Format(strings.ToLower(strings.TrimSpace(format)))
	if f == "" {
		f = FormatConsole
	}
	encoding, ok := encodings[f]
	if !ok {
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = encoding
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if f == FormatConsole {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	}
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
