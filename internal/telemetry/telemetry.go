// Package telemetry records workflow runs as OpenTelemetry spans.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

const (
	// RunSpanName names the span covering one workflow run.
	RunSpanName = "workflow.run"
	// StepEventName names the span event recorded per step signal.
	StepEventName = "workflow.step"
	// ContractEventName names the span event recorded per contract violation.
	ContractEventName = "workflow.integration_contract.failed"

	instrumentationName = "github.com/Iron-Ham/prflow"
)

// Attribute keys.
const (
	KeyOwner       = "prflow.owner"
	KeyRepo        = "prflow.repo"
	KeyIssue       = "prflow.issue_number"
	KeyBaseBranch  = "prflow.base_branch"
	KeyDryRun      = "prflow.dry_run"
	KeyRequestID   = "prflow.request_id"
	KeyConfirmedID = "prflow.confirmed_request_id"
	KeyStep        = "prflow.step"
	KeyStepStatus  = "prflow.step.status"
	KeyStepDetail  = "prflow.step.detail"
	KeyError       = "prflow.error"
	KeyResult      = "prflow.result.status"
	KeyBranch      = "prflow.result.branch"
)

// Config selects the tracer provider.
type Config struct {
	Enabled   bool
	TraceFile string
}

// Provider owns a tracer provider and whatever it writes to.
type Provider struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
	file     *os.File
}

// NewProvider builds a provider from cfg. A disabled config, or an enabled
// one without a trace file, yields a no-op provider.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled || strings.TrimSpace(cfg.TraceFile) == "" {
		return NewProviderFrom(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.TraceFile), 0o755); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	p := NewProviderFrom(tp)
	p.shutdown = tp.Shutdown
	p.file = f
	return p, nil
}

// NewProviderFrom wraps an existing tracer provider, such as one backed by
// a tracetest.SpanRecorder.
func NewProviderFrom(tp trace.TracerProvider) *Provider {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Provider{provider: tp}
}

// Tracer returns the prflow tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.provider == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.provider.Tracer(instrumentationName)
}

// Shutdown flushes pending spans and closes the trace file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var err error
	if p.shutdown != nil {
		err = p.shutdown(ctx)
		p.shutdown = nil
	}
	if p.file != nil {
		if cerr := p.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		p.file = nil
	}
	return err
}

// RunSpan is the span of one workflow run. A nil RunSpan is valid and
// records nothing.
type RunSpan struct {
	span trace.Span
}

// StartRun opens the run span.
func StartRun(ctx context.Context, tracer trace.Tracer, req workflow.RunRequest, requestID string) *RunSpan {
	if tracer == nil {
		return nil
	}
	_, span := tracer.Start(ctx, RunSpanName, trace.WithAttributes(
		attribute.String(KeyOwner, req.Owner),
		attribute.String(KeyRepo, req.Repo),
		attribute.Int(KeyIssue, req.IssueNumber),
		attribute.String(KeyBaseBranch, req.BaseBranch),
		attribute.Bool(KeyDryRun, req.DryRun),
		attribute.String(KeyRequestID, requestID),
	))
	return &RunSpan{span: span}
}

// Context returns parent carrying the run span, so work started from it
// is attributed to the run. A nil RunSpan returns parent.
func (r *RunSpan) Context(parent context.Context) context.Context {
	if r == nil {
		return parent
	}
	return trace.ContextWithSpan(parent, r.span)
}

// Step records a step-advance signal.
func (r *RunSpan) Step(sig runevent.StepSignal) {
	if r == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(KeyStep, sig.Step),
		attribute.String(KeyStepStatus, sig.Status),
	}
	if sig.Detail != "" {
		attrs = append(attrs, attribute.String(KeyStepDetail, sig.Detail))
	}
	r.span.AddEvent(StepEventName, trace.WithAttributes(attrs...))
}

// ContractViolation records a failed integration contract.
func (r *RunSpan) ContractViolation(detail string) {
	if r == nil {
		return
	}
	r.span.AddEvent(ContractEventName, trace.WithAttributes(attribute.String(KeyError, detail)))
}

// End closes the span. err marks the span failed; otherwise the result
// status is recorded.
func (r *RunSpan) End(confirmedID string, result workflow.Result, err error) {
	if r == nil {
		return
	}
	if confirmedID != "" {
		r.span.SetAttributes(attribute.String(KeyConfirmedID, confirmedID))
	}
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	} else {
		r.span.SetAttributes(
			attribute.String(KeyResult, result.Status),
			attribute.String(KeyBranch, result.Branch),
		)
		r.span.SetStatus(codes.Ok, "")
	}
	r.span.End()
}
