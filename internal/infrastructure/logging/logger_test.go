package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/obsgate/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		t.Run(format, func(t *testing.T) {
			logger := New(config.LoggingConfig{Level: "info", Format: format, Output: "stderr"}, "1.0.0")
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	logger.Component("reactor").Info("loop started", "queue", 64)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if entry["service"] != "obsgate" {
		t.Errorf("service = %v, want obsgate", entry["service"])
	}
	if entry["version"] != "test" {
		t.Errorf("version = %v, want test", entry["version"])
	}
	if entry["component"] != "reactor" {
		t.Errorf("component = %v, want reactor", entry["component"])
	}
	if entry["msg"] != "loop started" {
		t.Errorf("msg = %v, want 'loop started'", entry["msg"])
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "test", &buf)

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record should be written")
	}
}

func TestLogger_With(t *testing.T) {
	logger := Default()
	child := logger.With("device", "ccd0")

	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
	if child == logger {
		t.Error("expected child logger to be different from parent")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing happens")
}

func TestSetLevel_SharedByChildren(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)
	child := root.Component("devnet").Device("ccd0")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %s", buf.String())
	}

	if prev := root.SetLevel("debug"); prev != slog.LevelInfo {
		t.Errorf("SetLevel() previous = %v, want info", prev)
	}
	if child.Level() != slog.LevelDebug {
		t.Errorf("child level = %v, want debug", child.Level())
	}

	child.Debug("shown")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["device"] != "ccd0" || entry["component"] != "devnet" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewWithWriter_UTCTime(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(config.LoggingConfig{Format: "json"}, "test", &buf).Info("tick")

	var entry struct {
		Time string `json:"time"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, entry.Time)
	if err != nil {
		t.Fatalf("time %q: %v", entry.Time, err)
	}
	if _, offset := ts.Zone(); offset != 0 {
		t.Errorf("time %q is not UTC", entry.Time)
	}
}
