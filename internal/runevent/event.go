// Package runevent parses runtime events emitted on the backend's
// workflow stream.
//
// The stream is untrusted, best-effort input. Parse never panics and never
// returns an error: a payload is an event, a keep-alive or malformed.
package runevent

import (
	"encoding/json"
	"strings"
	"time"
)

// Event names emitted by the workflow backend.
const (
	EventWorkflowStep       = "workflow.step"
	EventChangeSetGenerated = "workflow.change_set.generated"
	EventContractFailed     = "workflow.integration_contract.failed"
)

// Field keys carried by known events.
const (
	FieldStep               = "step"
	FieldStatus             = "status"
	FieldDetail             = "detail"
	FieldChangeScope        = "change_scope"
	FieldFilesCount         = "files_count"
	FieldBackendFilesCount  = "backend_files_count"
	FieldFrontendFilesCount = "frontend_files_count"
	FieldError              = "error"
)

// StatusError is the step status that short-circuits the timeline.
const StatusError = "error"

// RuntimeEvent is one structured event correlated to a workflow run.
// Values are immutable once parsed; Fields must not be mutated by callers.
type RuntimeEvent struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Event     string            `json:"event"`
	RequestID string            `json:"request_id"`
	Fields    map[string]string `json:"fields"`
	Message   string            `json:"message"`
}

// StepSignal is the normalized progress signal carried by a workflow.step event.
type StepSignal struct {
	Step   string
	Status string
	Detail string
}

// IsError reports whether the signal marks the step as failed.
func (s StepSignal) IsError() bool {
	return s.Status == StatusError
}

// Payload classifies one line read from the stream.
type Payload int

const (
	// Malformed is anything that is neither an event nor a keep-alive.
	Malformed Payload = iota
	// KeepAlive is the server's idle ping.
	KeepAlive
	// Event is a well-formed runtime event.
	Event
)

// Parse decodes raw once and classifies it. The event is only meaningful
// when the classification is Event.
func Parse(raw []byte) (RuntimeEvent, Payload) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return RuntimeEvent{}, Malformed
	}
	if isPing(payload) {
		return RuntimeEvent{}, KeepAlive
	}

	var ev RuntimeEvent
	required := []struct {
		key string
		dst *string
	}{
		{"timestamp", &ev.Timestamp},
		{"level", &ev.Level},
		{"event", &ev.Event},
		{"request_id", &ev.RequestID},
		{"message", &ev.Message},
	}
	for _, r := range required {
		s, ok := payload[r.key].(string)
		if !ok {
			return RuntimeEvent{}, Malformed
		}
		*r.dst = s
	}

	ev.Fields = map[string]string{}
	if fields, ok := payload["fields"].(map[string]any); ok {
		for k, v := range fields {
			if s, ok := v.(string); ok {
				ev.Fields[k] = s
			}
		}
	}
	return ev, Event
}

func isPing(payload map[string]any) bool {
	t, ok := payload["type"].(string)
	return ok && t == "ping"
}

// Field returns the named field, or "" when absent.
func (e RuntimeEvent) Field(key string) string {
	return e.Fields[key]
}

// StepSignal extracts the step-advance signal from a workflow.step event.
// The boolean is false for other events or when step or status is missing.
func (e RuntimeEvent) StepSignal() (StepSignal, bool) {
	if e.Event != EventWorkflowStep {
		return StepSignal{}, false
	}
	step := strings.TrimSpace(e.Fields[FieldStep])
	status := strings.TrimSpace(e.Fields[FieldStatus])
	if step == "" || status == "" {
		return StepSignal{}, false
	}
	return StepSignal{Step: step, Status: status, Detail: e.Fields[FieldDetail]}, true
}

// Time parses the event timestamp. The zero time is returned when the
// backend sent something that is not RFC 3339.
func (e RuntimeEvent) Time() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}
