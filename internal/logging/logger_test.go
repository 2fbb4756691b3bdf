// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitAndLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf, Timestamp: false})
	defer Init(DefaultConfig())

	Debug().Str("k", "v").Msg("debug line")
	Info().Msg("info line")

	out := buf.String()
	if !strings.Contains(out, `"debug line"`) {
		t.Errorf("debug output missing: %s", out)
	}
	if !strings.Contains(out, `"k":"v"`) {
		t.Errorf("structured field missing: %s", out)
	}
	if !strings.Contains(out, `"info line"`) {
		t.Errorf("info output missing: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf, Timestamp: false})
	defer Init(DefaultConfig())

	Info().Msg("suppressed")
	Warn().Msg("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("info line leaked past warn level: %s", out)
	}
	if !strings.Contains(out, "emitted") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf, Timestamp: false})
	defer Init(DefaultConfig())

	componentLogger := WithComponent("prefetch")
	componentLogger.Info().Msg("pool started")

	if !strings.Contains(buf.String(), `"component":"prefetch"`) {
		t.Errorf("component field missing: %s", buf.String())
	}
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.Info().Str("session_id", "s1").Msg("captured")

	out := buf.String()
	if !strings.Contains(out, `"session_id":"s1"`) || !strings.Contains(out, "captured") {
		t.Errorf("test logger output unexpected: %s", out)
	}
}
