package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"critical", "critical", LevelCritical},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Error", "Error", slog.LevelError},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelFromLogLevel(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "debug"},
		{1, "info"},
		{2, "warn"},
		{3, "error"},
		{4, "critical"},
		{9, "info"},
		{-1, "info"},
	}
	for _, tt := range tests {
		if got := LevelFromLogLevel(tt.in); got != tt.want {
			t.Errorf("LevelFromLogLevel(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"error filters info", "error", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_CriticalLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("critical", &buf)
	logger.Log(t.Context(), LevelCritical, "simulator lost")

	if !strings.Contains(buf.String(), "level=CRITICAL") {
		t.Errorf("expected CRITICAL label, got %q", buf.String())
	}
}

func TestEventLog_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLog(dir)
	if el == nil {
		t.Fatal("expected non-nil EventLog")
	}
	defer el.Close()

	el.Log(map[string]any{"event": "run_started", "variant": "g_1.0"})
	el.Log(map[string]any{"event": "run_finished"})

	data, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("failed to read events.jsonl: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if first["event"] != "run_started" || first["variant"] != "g_1.0" {
		t.Errorf("unexpected entry: %v", first)
	}
	if _, ok := first["time"]; !ok {
		t.Error("expected 'time' field in event entry")
	}
}

func TestEventLog_NilSafety(t *testing.T) {
	var el *EventLog
	el.Log(map[string]any{"event": "should_not_panic"})
	el.Close()
}

func TestEventLog_DoesNotMutateCallerMap(t *testing.T) {
	el := NewEventLog(t.TempDir())
	defer el.Close()

	event := map[string]any{"event": "test"}
	el.Log(event)

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map, but 'time' was injected")
	}
}

func TestEventLog_LogAfterClose(t *testing.T) {
	el := NewEventLog(t.TempDir())
	el.Log(map[string]any{"event": "before_close"})
	el.Close()
	el.Log(map[string]any{"event": "after_close"})
}

func TestNewEventLog_CreatesDir(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "run", "log")
	el := NewEventLog(nested)
	if el == nil {
		t.Fatal("expected non-nil EventLog when dir needs creation")
	}
	defer el.Close()

	if _, err := os.Stat(filepath.Join(nested, "events.jsonl")); err != nil {
		t.Fatalf("events.jsonl should exist after dir creation: %v", err)
	}
}

func TestNewEventLog_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if el := NewEventLog(filepath.Join(blocker, "log")); el != nil {
		el.Close()
		t.Error("expected nil EventLog when the directory cannot be created")
	}
}
