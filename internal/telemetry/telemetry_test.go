package telemetry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

func newTestProvider() (*Provider, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewProviderFrom(tp), recorder
}

func attr(attrs []attribute.KeyValue, key string) attribute.Value {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value
		}
	}
	return attribute.Value{}
}

func TestRunSpan_Success(t *testing.T) {
	t.Parallel()

	p, recorder := newTestProvider()
	req := workflow.RunRequest{Owner: "acme", Repo: "app", IssueNumber: 7, BaseBranch: "main", DryRun: true}
	run := StartRun(context.Background(), p.Tracer(), req, "req-1")
	run.Step(runevent.StepSignal{Step: "load_issue", Status: "start"})
	run.Step(runevent.StepSignal{Step: "prepare_repo", Status: "success", Detail: "cloned"})
	run.ContractViolation("missing tests")
	run.End("server-1", workflow.Result{Status: "dry_run", Branch: "feat/7"}, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended span count = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != RunSpanName {
		t.Errorf("span name = %q, want %q", span.Name(), RunSpanName)
	}
	if got := attr(span.Attributes(), KeyIssue).AsInt64(); got != 7 {
		t.Errorf("issue attribute = %d, want 7", got)
	}
	if !attr(span.Attributes(), KeyDryRun).AsBool() {
		t.Error("dry_run attribute = false, want true")
	}
	if got := attr(span.Attributes(), KeyConfirmedID).AsString(); got != "server-1" {
		t.Errorf("confirmed id = %q, want server-1", got)
	}
	if got := attr(span.Attributes(), KeyResult).AsString(); got != "dry_run" {
		t.Errorf("result status = %q, want dry_run", got)
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	events := span.Events()
	if len(events) != 3 {
		t.Fatalf("event count = %d, want 3", len(events))
	}
	if events[1].Name != StepEventName || attr(events[1].Attributes, KeyStepDetail).AsString() != "cloned" {
		t.Errorf("second event = %s %v", events[1].Name, events[1].Attributes)
	}
	if events[2].Name != ContractEventName {
		t.Errorf("third event = %q, want %q", events[2].Name, ContractEventName)
	}
}

func TestRunSpan_Failure(t *testing.T) {
	t.Parallel()

	p, recorder := newTestProvider()
	run := StartRun(context.Background(), p.Tracer(), workflow.RunRequest{Owner: "a", Repo: "b", IssueNumber: 1}, "id")
	run.End("", workflow.Result{}, errors.New("Issue not found"))

	span := recorder.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "Issue not found" {
		t.Errorf("description = %q", span.Status().Description)
	}
}

func TestRunSpan_Context(t *testing.T) {
	t.Parallel()

	p, recorder := newTestProvider()
	run := StartRun(context.Background(), p.Tracer(), workflow.RunRequest{Owner: "acme"}, "req-ctx")
	ctx := run.Context(context.Background())
	_, child := p.Tracer().Start(ctx, "child")
	child.End()
	run.End("req-ctx", workflow.Result{}, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	childSpan, runSpan := spans[0], spans[1]
	if childSpan.Parent().SpanID() != runSpan.SpanContext().SpanID() {
		t.Error("span started from Context() should be a child of the run span")
	}
}

func TestRunSpan_NilIsNoop(t *testing.T) {
	t.Parallel()

	var run *RunSpan
	run.Step(runevent.StepSignal{Step: "x"})
	run.ContractViolation("x")
	run.End("", workflow.Result{}, nil)
	parent := context.Background()
	if run.Context(parent) != parent {
		t.Error("Context() of a nil span should return its parent")
	}
	if StartRun(context.Background(), nil, workflow.RunRequest{}, "") != nil {
		t.Error("StartRun with nil tracer should return nil")
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(Config{Enabled: false, TraceFile: "/nonexistent/x.json"})
	if err != nil {
		t.Fatal(err)
	}
	run := StartRun(context.Background(), p.Tracer(), workflow.RunRequest{}, "id")
	run.End("", workflow.Result{}, nil)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewProvider_WritesTraceFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "traces", "runs.jsonl")
	p, err := NewProvider(Config{Enabled: true, TraceFile: path})
	if err != nil {
		t.Fatal(err)
	}
	run := StartRun(context.Background(), p.Tracer(), workflow.RunRequest{Owner: "acme", Repo: "app", IssueNumber: 3}, "req-3")
	run.End("req-3", workflow.Result{Status: "success"}, nil)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), RunSpanName) || !strings.Contains(string(data), "req-3") {
		t.Errorf("trace file does not contain the run span: %s", data)
	}
}
