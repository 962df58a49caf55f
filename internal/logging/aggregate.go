package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed line of the JSON log.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	RequestID string         `json:"request_id,omitempty"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects log entries. Zero-valued criteria are ignored and the
// rest are combined with AND.
type LogFilter struct {
	// Level keeps entries at or above this level.
	Level           string
	StartTime       time.Time
	EndTime         time.Time
	RequestID       string
	Component       string
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var standardKeys = map[string]bool{
	"time":       true,
	"level":      true,
	"msg":        true,
	KeyRequestID: true,
	KeyComponent: true,
}

// AggregateLogs reads {dir}/prflow.log and returns its entries sorted by
// time. Lines that are not valid JSON are skipped.
func AggregateLogs(dir string) ([]LogEntry, error) {
	file, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file found in %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadEntries(file)
}

// ReadEntries parses JSON log lines from r.
func ReadEntries(r io.Reader) ([]LogEntry, error) {
	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}
	if s, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			entry.Timestamp = t
		}
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	entry.RequestID, _ = raw[KeyRequestID].(string)
	entry.Component, _ = raw[KeyComponent].(string)

	for k, v := range raw {
		if !standardKeys[k] {
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching every criterion in filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}
	var out []LogEntry
	for _, e := range entries {
		if matches(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

func matches(e LogEntry, f LogFilter) bool {
	if f.Level != "" {
		want, okWant := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[e.Level]
		if okWant && okGot && got < want {
			return false
		}
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.MessageContains)) {
		return false
	}
	return true
}

// WriteText writes entries in a human-readable format:
//
//	[2006-01-02 15:04:05.000] LEVEL component - message (request=id) {attrs}
func WriteText(w io.Writer, entries []LogEntry) error {
	for _, e := range entries {
		parts := []string{fmt.Sprintf("[%s]", e.Timestamp.Format("2006-01-02 15:04:05.000")), e.Level}
		if e.Component != "" {
			parts = append(parts, e.Component)
		}
		parts = append(parts, "-", e.Message)
		if e.RequestID != "" {
			parts = append(parts, fmt.Sprintf("(request=%s)", e.RequestID))
		}
		if len(e.Attrs) > 0 {
			b, _ := json.Marshal(e.Attrs)
			parts = append(parts, string(b))
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	return nil
}

// WriteJSON writes entries as an indented JSON array.
func WriteJSON(w io.Writer, entries []LogEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if entries == nil {
		entries = []LogEntry{}
	}
	return enc.Encode(entries)
}
