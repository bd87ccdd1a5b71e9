// SPDX-FileCopyrightText: 2025 The energytest Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		logsInfo  bool
		logsDebug bool
	}{
		{name: "text at info", level: "info", format: "text", logsInfo: true},
		{name: "text at debug", level: "debug", format: "text", logsInfo: true, logsDebug: true},
		{name: "text at error", level: "error", format: "text"},
		{name: "json at info", level: "info", format: "json", logsInfo: true},
		{name: "json at warn", level: "warn", format: "json"},
		{name: "unknown level defaults to info", level: "chatty", format: "text", logsInfo: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(tt.level, tt.format, &buf)

			log.Info("trial started", "runs", 3)
			log.Debug("zone snapshot")

			out := buf.String()
			if tt.logsInfo {
				assert.Contains(t, out, "trial started")
				assert.Contains(t, out, "runs")
			} else {
				assert.NotContains(t, out, "trial started")
			}
			if tt.logsDebug {
				assert.Contains(t, out, "zone snapshot")
			} else {
				assert.NotContains(t, out, "zone snapshot")
			}
		})
	}
}

func TestNewInvalidFormatPanics(t *testing.T) {
	assert.Panics(t, func() {
		_ = New("info", "logfmt", io.Discard)
	})
}

func TestJSONOutputIsStructured(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", "json", &buf)
	log.Info("measurement complete", "zone", "package")

	record := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Contains(t, record, "time")
	assert.Contains(t, record, "source")
	assert.Equal(t, "measurement complete", record["msg"])
	assert.Equal(t, "package", record["zone"])
}

func TestTextOutputShortensSourcePath(t *testing.T) {
	var buf bytes.Buffer
	log := New("info", "text", &buf)
	log.Info("measurement complete")

	out := buf.String()
	require.Contains(t, out, "source=")

	// The handler keeps only the last two directories and the filename.
	for _, field := range strings.Fields(out) {
		src, ok := strings.CutPrefix(field, "source=")
		if !ok {
			continue
		}
		file := src
		if i := strings.LastIndex(src, ":"); i >= 0 {
			file = src[:i]
		}
		assert.LessOrEqual(t, strings.Count(file, "/"), 2, "source path not shortened: %s", src)
		return
	}
	t.Fatalf("no source attribute in output: %s", out)
}

func TestLogLevelTracksLastNew(t *testing.T) {
	_ = New("debug", "text", io.Discard)
	assert.Equal(t, slog.LevelDebug, LogLevel())

	_ = New("error", "json", io.Discard)
	assert.Equal(t, slog.LevelError, LogLevel())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.level), "parseLogLevel(%q)", tt.level)
	}
}
