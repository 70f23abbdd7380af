package logging

import (
	"bufio"
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
		in   string
		want slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_TraceLevelLabel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("trace", &buf)
	log.Log(nil, LevelTrace, "prompt content", "role", "context")

	out := buf.String()
	if !strings.Contains(out, "TRACE") {
		t.Errorf("trace record missing TRACE label: %s", out)
	}
}

func TestNewLogger_InfoSuppressesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("info", &buf)
	log.Debug("hidden")
	log.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record leaked at info level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("info record missing")
	}
}

func TestRunTrace_NilSafe(t *testing.T) {
	var rt *RunTrace
	rt.Log(map[string]any{"status": "skipped_away"}) // must not panic
	rt.Close()
}

func TestRunTrace_InfoLevelDisabled(t *testing.T) {
	dir := t.TempDir()
	if rt := NewRunTrace(dir, "info"); rt != nil {
		t.Error("run trace should be nil at info level")
	}
	if _, err := os.Stat(filepath.Join(dir, "trace.jsonl")); !os.IsNotExist(err) {
		t.Error("no trace file should be created at info level")
	}
}

func TestRunTrace_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	rt := NewRunTrace(dir, "debug")
	if rt == nil {
		t.Fatal("expected run trace at debug level")
	}
	rt.Log(map[string]any{"status": "logged", "member_id": "M1"})
	rt.Log(map[string]any{"status": "skipped_sleep", "member_id": "M2"})
	rt.Close()

	f, err := os.Open(filepath.Join(dir, "trace.jsonl"))
	if err != nil {
		t.Fatalf("opening trace file: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines, err)
		}
		if record["time"] == nil {
			t.Error("trace record missing time field")
		}
	}
	if lines != 2 {
		t.Errorf("got %d trace lines, want 2", lines)
	}
}
