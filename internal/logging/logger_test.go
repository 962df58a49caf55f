package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()
		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("stderr logger closes cleanly", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() = %v, want nil", err)
		}
	})
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["msg"] != "warn" || lines[1]["msg"] != "error" {
		t.Errorf("unexpected messages: %v", lines)
	}
}

func TestLogger_ChildAttributes(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelDebug)
	child := root.WithComponent("ingest").WithRequest("req-1").WithRun(3).With("repo", "acme/app")

	child.Info("payload accepted", "event", "workflow.step")
	root.Info("root line")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	want := map[string]any{
		"component":  "ingest",
		"request_id": "req-1",
		"run":        float64(3),
		"repo":       "acme/app",
		"event":      "workflow.step",
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Errorf("child line[%q] = %v, want %v", k, lines[0][k], v)
		}
	}
	if _, ok := lines[1]["request_id"]; ok {
		t.Error("root logger should not inherit child attributes")
	}
}

func TestLogger_CloseSharedByChildren(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	child := logger.WithComponent("tui")

	if err := child.Close(); err != nil {
		t.Fatalf("child Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"Error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no third backup, stat err = %v", err)
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	chunk := bytes.Repeat([]byte("y"), 700*1024)
	_, _ = rw.Write(chunk)
	_, _ = rw.Write(chunk)
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(path + ".1.gz"); err != nil {
		t.Errorf("expected compressed backup: %v", err)
	}
}

func TestRotatingWriter_ClosedWrite(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), FileName), DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	_ = rw.Close()
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
}

func TestAggregateAndFilter(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.WithComponent("dashboard").WithRequest("req-a").Info("run started")
	logger.WithComponent("ingest").WithRequest("req-a").Debug("event received", "event", "workflow.step")
	logger.WithComponent("dashboard").WithRequest("req-b").Error("run failed")
	_ = logger.Close()

	entries, err := AggregateLogs(dir)
	if err != nil {
		t.Fatalf("AggregateLogs failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"no filter", LogFilter{}, 3},
		{"by request", LogFilter{RequestID: "req-a"}, 2},
		{"by component", LogFilter{Component: "ingest"}, 1},
		{"by level", LogFilter{Level: "warn"}, 1},
		{"by message", LogFilter{MessageContains: "RUN"}, 2},
		{"future start", LogFilter{StartTime: time.Now().Add(time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterLogs(entries, tt.filter); len(got) != tt.want {
				t.Errorf("len(FilterLogs()) = %d, want %d", len(got), tt.want)
			}
		})
	}

	if entries[1].Attrs["event"] != "workflow.step" {
		t.Errorf("Attrs[event] = %v, want workflow.step", entries[1].Attrs["event"])
	}
}

func TestAggregateLogs_Missing(t *testing.T) {
	if _, err := AggregateLogs(t.TempDir()); err == nil {
		t.Error("AggregateLogs on empty dir should fail")
	}
}

func TestReadEntries_SkipsGarbage(t *testing.T) {
	input := "not json\n\n" + `{"time":"2026-01-01T00:00:00Z","level":"INFO","msg":"ok"}` + "\n"
	entries, err := ReadEntries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "ok" {
		t.Errorf("entries = %+v, want one entry", entries)
	}
}

func TestWriteText(t *testing.T) {
	entries := []LogEntry{{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     LevelInfo,
		Message:   "run settled",
		RequestID: "req-1",
		Component: "dashboard",
	}}
	var buf bytes.Buffer
	if err := WriteText(&buf, entries); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	want := "[2026-01-02 03:04:05.000] INFO dashboard - run settled (request=req-1)\n"
	if buf.String() != want {
		t.Errorf("WriteText() = %q, want %q", buf.String(), want)
	}
}

func TestWriteJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("WriteJSON(nil) = %q, want []", buf.String())
	}
}
