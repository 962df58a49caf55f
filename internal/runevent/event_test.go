package runevent

import (
	"testing"
	"time"
)

const validStep = `{"timestamp":"2026-01-02T10:00:00Z","level":"INFO","event":"workflow.step","request_id":"req-1","message":"step","fields":{"step":"load_issue","status":"start"}}`

func TestParse_Valid(t *testing.T) {
	ev, kind := Parse([]byte(validStep))
	if kind != Event {
		t.Fatalf("Parse() kind = %v, want Event", kind)
	}
	if ev.Event != EventWorkflowStep {
		t.Errorf("Event = %q, want %q", ev.Event, EventWorkflowStep)
	}
	if ev.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want %q", ev.RequestID, "req-1")
	}
	if ev.Field(FieldStep) != "load_issue" {
		t.Errorf("Field(step) = %q, want %q", ev.Field(FieldStep), "load_issue")
	}
}

func TestParse_Classifies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Payload
	}{
		{"empty", ``, Malformed},
		{"syntax error", `{"timestamp":`, Malformed},
		{"array", `[1,2,3]`, Malformed},
		{"string", `"workflow.step"`, Malformed},
		{"null", `null`, Malformed},
		{"keep-alive", `{"type":"ping"}`, KeepAlive},
		{"keep-alive with extras", `{"type":"ping","timestamp":"t","level":"INFO","event":"e","request_id":"r","message":"m"}`, KeepAlive},
		{"other type", `{"type":"pong"}`, Malformed},
		{"missing timestamp", `{"level":"INFO","event":"e","request_id":"r","message":"m"}`, Malformed},
		{"missing message", `{"timestamp":"t","level":"INFO","event":"e","request_id":"r"}`, Malformed},
		{"numeric level", `{"timestamp":"t","level":20,"event":"e","request_id":"r","message":"m"}`, Malformed},
		{"null request id", `{"timestamp":"t","level":"INFO","event":"e","request_id":null,"message":"m"}`, Malformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, kind := Parse([]byte(tt.raw)); kind != tt.want {
				t.Errorf("Parse(%s) kind = %v, want %v", tt.raw, kind, tt.want)
			}
		})
	}
}

func TestParse_FieldsFiltering(t *testing.T) {
	tests := []struct {
		name   string
		fields string
		want   map[string]string
	}{
		{"absent", ``, map[string]string{}},
		{"non-object", `,"fields":"oops"`, map[string]string{}},
		{"mixed values", `,"fields":{"a":"x","b":3,"c":true,"d":null,"e":{"n":1},"f":"y"}`, map[string]string{"a": "x", "f": "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"timestamp":"t","level":"INFO","event":"e","request_id":"r","message":"m"` + tt.fields + `}`
			ev, kind := Parse([]byte(raw))
			if kind != Event {
				t.Fatalf("Parse(%s) rejected", raw)
			}
			if len(ev.Fields) != len(tt.want) {
				t.Fatalf("Fields = %v, want %v", ev.Fields, tt.want)
			}
			for k, v := range tt.want {
				if ev.Fields[k] != v {
					t.Errorf("Fields[%q] = %q, want %q", k, ev.Fields[k], v)
				}
			}
		})
	}
}

func TestRuntimeEvent_StepSignal(t *testing.T) {
	tests := []struct {
		name   string
		event  RuntimeEvent
		want   StepSignal
		wantOK bool
	}{
		{
			name:   "step event",
			event:  RuntimeEvent{Event: EventWorkflowStep, Fields: map[string]string{"step": "publish_branch", "status": "success", "detail": "feat/1"}},
			want:   StepSignal{Step: "publish_branch", Status: "success", Detail: "feat/1"},
			wantOK: true,
		},
		{
			name:  "missing status",
			event: RuntimeEvent{Event: EventWorkflowStep, Fields: map[string]string{"step": "load_issue"}},
		},
		{
			name:  "other event",
			event: RuntimeEvent{Event: EventChangeSetGenerated, Fields: map[string]string{"step": "load_issue", "status": "start"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.event.StepSignal()
			if ok != tt.wantOK {
				t.Fatalf("StepSignal() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("StepSignal() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStepSignal_IsError(t *testing.T) {
	if !(StepSignal{Status: "error"}).IsError() {
		t.Error("status error should report IsError")
	}
	if (StepSignal{Status: "success"}).IsError() {
		t.Error("status success should not report IsError")
	}
}

func TestRuntimeEvent_Time(t *testing.T) {
	ev := RuntimeEvent{Timestamp: "2026-01-02T10:00:00.123456+00:00"}
	want := time.Date(2026, 1, 2, 10, 0, 0, 123456000, time.UTC)
	if got := ev.Time(); !got.Equal(want) {
		t.Errorf("Time() = %v, want %v", got, want)
	}

	if got := (RuntimeEvent{Timestamp: "yesterday"}).Time(); !got.IsZero() {
		t.Errorf("Time() = %v, want zero", got)
	}
}
