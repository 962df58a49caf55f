package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/prflow/internal/config"
	"github.com/Iron-Ham/prflow/internal/dashboard"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/event"
	"github.com/Iron-Ham/prflow/internal/logging"
	"github.com/Iron-Ham/prflow/internal/testbackend"
	"github.com/Iron-Ham/prflow/internal/testutil"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "prflow" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "prflow")
	}

	// Compare by Name(), not Use which includes args
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range []string{"dash", "run", "health", "config", "logs"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func resetRunFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		for _, name := range []string{"owner", "repo", "issue", "base", "dry-run", "json"} {
			f := runCmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
}

func TestRequestFromFlags(t *testing.T) {
	resetRunFlags(t)
	form := config.FormConfig{Owner: "acme", Repo: "app", BaseBranch: "develop", DryRun: true}

	req := requestFromFlags(runCmd, form)
	want := workflow.RunRequest{Owner: "acme", Repo: "app", BaseBranch: "develop", DryRun: true}
	if req != want {
		t.Errorf("without flags = %+v, want %+v", req, want)
	}

	for name, value := range map[string]string{"repo": "web", "issue": "7", "dry-run": "false"} {
		if err := runCmd.Flags().Set(name, value); err != nil {
			t.Fatalf("Set(%s) error = %v", name, err)
		}
	}
	req = requestFromFlags(runCmd, form)
	want = workflow.RunRequest{Owner: "acme", Repo: "web", IssueNumber: 7, BaseBranch: "develop", DryRun: false}
	if req != want {
		t.Errorf("with flags = %+v, want %+v", req, want)
	}
}

func newController(t *testing.T, b *testbackend.Backend) *dashboard.Controller {
	t.Helper()
	client := testutil.StartBackend(t, b)
	ctrl := dashboard.New(dashboard.Config{
		Runner:      client,
		Transport:   client,
		GracePeriod: 50 * time.Millisecond,
	})
	t.Cleanup(ctrl.Close)
	return ctrl
}

func successScript() testbackend.Script {
	return testbackend.Script{
		Events: append(testbackend.HappyPath(), testbackend.ChangeSet("fullstack", 3, 2, 1)),
		Result: workflow.Result{
			Status:  workflow.StatusSuccess,
			Message: "Pull request opened",
			Branch:  "feat/42",
			PRURL:   "https://github.com/acme/app/pull/9",
		},
	}
}

func request() workflow.RunRequest {
	return workflow.RunRequest{Owner: "acme", Repo: "app", IssueNumber: 42}
}

func TestFollowRun_Success(t *testing.T) {
	b := testbackend.New()
	b.Enqueue(successScript())
	ctrl := newController(t, b)

	var out, errOut bytes.Buffer
	if err := followRun(context.Background(), ctrl, request(), &out, &errOut, false); err != nil {
		t.Fatalf("followRun() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Started acme/app#42",
		"[1/6] Load GitHub issue",
		"[6/6] Open pull request · success",
		"Completed",
		"Pull request opened",
		"https://github.com/acme/app/pull/9",
		"Integration Engineer",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "Started") > strings.Index(got, "[1/6]") {
		t.Errorf("step progress printed before the start line:\n%s", got)
	}
	if errOut.Len() != 0 {
		t.Errorf("unexpected stderr output: %s", errOut.String())
	}
}

func TestFollowRun_Failure(t *testing.T) {
	b := testbackend.New()
	b.Enqueue(testbackend.Script{
		Events: []testbackend.Event{testbackend.Step("load_issue", "started", "")},
		Status: 500,
		Detail: "Issue #42 not found",
	})
	ctrl := newController(t, b)

	var out bytes.Buffer
	err := followRun(context.Background(), ctrl, request(), &out, io.Discard, false)
	if err == nil || !strings.Contains(err.Error(), "Issue #42 not found") {
		t.Fatalf("followRun() error = %v, want the backend detail", err)
	}
	if !strings.Contains(out.String(), "Failed") {
		t.Errorf("summary should show the failure:\n%s", out.String())
	}
}

func TestFollowRun_InvalidRequest(t *testing.T) {
	b := testbackend.New()
	ctrl := newController(t, b)

	err := followRun(context.Background(), ctrl, workflow.RunRequest{Owner: "acme"}, io.Discard, io.Discard, false)
	var verr *perrors.ValidationError
	if !perrors.As(err, &verr) {
		t.Fatalf("followRun() error = %v, want a ValidationError", err)
	}
	if len(b.Runs()) != 0 {
		t.Error("an invalid request must not reach the backend")
	}

	hinted := usageHint(err)
	for _, want := range []string{"repo is required", "issue_number must be greater than 0", "prflow run --help"} {
		if !strings.Contains(hinted.Error(), want) {
			t.Errorf("usageHint() = %q, want it to contain %q", hinted, want)
		}
	}
	if other := errors.New("boom"); usageHint(other) != other {
		t.Error("usageHint() should pass other errors through")
	}
}

func TestFollowRun_JSON(t *testing.T) {
	b := testbackend.New()
	b.Enqueue(successScript())
	ctrl := newController(t, b)

	var out bytes.Buffer
	if err := followRun(context.Background(), ctrl, request(), &out, io.Discard, true); err != nil {
		t.Fatalf("followRun() error = %v", err)
	}

	dec := json.NewDecoder(&out)
	var docs []map[string]any
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("output is not a JSON stream: %v", err)
		}
		docs = append(docs, doc)
	}

	wantEvents := len(successScript().Events)
	if len(docs) != wantEvents+1 {
		t.Fatalf("got %d JSON documents, want %d events plus the summary", len(docs), wantEvents)
	}
	summary := docs[len(docs)-1]
	if summary["phase"] != "success" {
		t.Errorf("phase = %v, want success", summary["phase"])
	}
	if int(summary["events"].(float64)) != wantEvents {
		t.Errorf("events = %v, want %d", summary["events"], wantEvents)
	}
	agentsDoc, _ := summary["agents"].(map[string]any)
	if len(agentsDoc) != 5 {
		t.Errorf("agents = %v, want 5 entries", agentsDoc)
	}
	if docs[0]["event"] != "workflow.step" {
		t.Errorf("first document = %v, want a workflow.step event", docs[0])
	}
}

func TestStepLine(t *testing.T) {
	tests := []struct {
		name string
		ev   event.TimelineAdvancedEvent
		want []string
	}{
		{
			name: "running with detail",
			ev:   event.NewTimelineAdvancedEvent(event.Run{}, "running", 2, "backend_dev drafting"),
			want: []string{"[3/6] Run agent crew", "backend_dev drafting"},
		},
		{
			name: "terminal phase",
			ev:   event.NewTimelineAdvancedEvent(event.Run{}, "error", 5, ""),
			want: []string{"[6/6] Open pull request · error"},
		},
		{
			name: "index clamped",
			ev:   event.NewTimelineAdvancedEvent(event.Run{}, "running", 99, ""),
			want: []string{"[6/6]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stepLine(tt.ev)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("stepLine() = %q, want it to contain %q", got, w)
				}
			}
		})
	}
}

func TestPollHealth(t *testing.T) {
	ok := func(context.Context) (workflow.HealthStatus, error) {
		return workflow.HealthStatus{Status: "ok"}, nil
	}
	degraded := func(context.Context) (workflow.HealthStatus, error) {
		return workflow.HealthStatus{Status: "degraded"}, nil
	}

	t.Run("single check ok", func(t *testing.T) {
		status, err := pollHealth(context.Background(), ok, 0, time.Second)
		if err != nil || status.Status != "ok" {
			t.Errorf("pollHealth() = %+v, %v", status, err)
		}
	})

	t.Run("single check degraded", func(t *testing.T) {
		_, err := pollHealth(context.Background(), degraded, 0, time.Second)
		if err == nil || !strings.Contains(err.Error(), "degraded") {
			t.Errorf("pollHealth() error = %v, want degraded", err)
		}
	})

	t.Run("wait until healthy", func(t *testing.T) {
		var calls atomic.Int32
		check := func(ctx context.Context) (workflow.HealthStatus, error) {
			if calls.Add(1) < 3 {
				return workflow.HealthStatus{}, perrors.NewRequestError(perrors.KindNetwork, "health", errors.New("refused"))
			}
			return ok(ctx)
		}
		status, err := pollHealth(context.Background(), check, 2*time.Second, 10*time.Millisecond)
		if err != nil || !status.OK() {
			t.Fatalf("pollHealth() = %+v, %v", status, err)
		}
		if got := calls.Load(); got != 3 {
			t.Errorf("checks = %d, want 3", got)
		}
	})

	t.Run("rejection ends the wait", func(t *testing.T) {
		var calls atomic.Int32
		check := func(context.Context) (workflow.HealthStatus, error) {
			calls.Add(1)
			return workflow.HealthStatus{}, perrors.NewRequestError(perrors.KindBackend, "health", nil).WithStatus(404)
		}
		_, err := pollHealth(context.Background(), check, 2*time.Second, 10*time.Millisecond)
		if !perrors.Is(err, perrors.ErrBackendRejected) {
			t.Fatalf("pollHealth() error = %v, want ErrBackendRejected", err)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("checks = %d, want 1", got)
		}
	})

	t.Run("server error keeps waiting", func(t *testing.T) {
		var calls atomic.Int32
		check := func(ctx context.Context) (workflow.HealthStatus, error) {
			if calls.Add(1) < 2 {
				return workflow.HealthStatus{}, perrors.NewRequestError(perrors.KindBackend, "health", nil).WithStatus(503)
			}
			return ok(ctx)
		}
		if _, err := pollHealth(context.Background(), check, 2*time.Second, 10*time.Millisecond); err != nil {
			t.Fatalf("pollHealth() error = %v", err)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("checks = %d, want 2", got)
		}
	})

	t.Run("wait times out", func(t *testing.T) {
		_, err := pollHealth(context.Background(), degraded, 50*time.Millisecond, 10*time.Millisecond)
		var timeout *perrors.TimeoutError
		if !perrors.As(err, &timeout) {
			t.Fatalf("pollHealth() error = %v, want a TimeoutError", err)
		}
		if !strings.Contains(perrors.UserMessage(err), "reach a healthy backend") {
			t.Errorf("UserMessage() = %q", perrors.UserMessage(err))
		}
	})
}

func TestSelectEntries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := []logging.LogEntry{
		{Timestamp: now.Add(-3 * time.Hour), Level: logging.LevelInfo, Message: "run submitted", RequestID: "a", Component: "dashboard"},
		{Timestamp: now.Add(-30 * time.Minute), Level: logging.LevelWarn, Message: "event stream lost", RequestID: "a", Component: "dashboard"},
		{Timestamp: now.Add(-20 * time.Minute), Level: logging.LevelDebug, Message: "runtime event", RequestID: "b", Component: "ingest",
			Attrs: map[string]any{"event": "workflow.step"}},
		{Timestamp: now.Add(-10 * time.Minute), Level: logging.LevelError, Message: "run failed", RequestID: "b", Component: "dashboard"},
	}

	tests := []struct {
		name string
		opts logsOptions
		want []string
	}{
		{"all", logsOptions{}, []string{"run submitted", "event stream lost", "runtime event", "run failed"}},
		{"request", logsOptions{RequestID: "a"}, []string{"run submitted", "event stream lost"}},
		{"level", logsOptions{Level: "warn"}, []string{"event stream lost", "run failed"}},
		{"since", logsOptions{Since: time.Hour}, []string{"event stream lost", "runtime event", "run failed"}},
		{"component", logsOptions{Component: "ingest"}, []string{"runtime event"}},
		{"grep attrs", logsOptions{Grep: `workflow\.step`}, []string{"runtime event"}},
		{"grep message", logsOptions{Grep: "lost|failed"}, []string{"event stream lost", "run failed"}},
		{"tail", logsOptions{Tail: 2}, []string{"runtime event", "run failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectEntries(entries, tt.opts, now)
			if err != nil {
				t.Fatalf("selectEntries() error = %v", err)
			}
			var msgs []string
			for _, e := range got {
				msgs = append(msgs, e.Message)
			}
			if strings.Join(msgs, ",") != strings.Join(tt.want, ",") {
				t.Errorf("selectEntries() = %v, want %v", msgs, tt.want)
			}
		})
	}

	if _, err := selectEntries(entries, logsOptions{Grep: "("}, now); err == nil {
		t.Error("an invalid grep pattern should be rejected")
	}
}
