package outcome

import (
	"testing"

	"github.com/Iron-Ham/prflow/internal/workflow"
)

func TestReconcile_Precedence(t *testing.T) {
	result := &workflow.Result{Status: workflow.StatusSuccess, Message: "PR opened", Branch: "feat/1"}

	tests := []struct {
		name       string
		submitting bool
		errMsg     string
		result     *workflow.Result
		wantTone   Tone
		wantMsg    string
	}{
		{"idle", false, "", nil, ToneIdle, idleMessage},
		{"submitting overrides all", true, "boom", result, ToneRunning, runningMessage},
		{"error overrides result", false, "X", result, ToneError, "X"},
		{"success result", false, "", result, ToneSuccess, "PR opened"},
		{"dry run result", false, "", &workflow.Result{Status: workflow.StatusDryRun, Message: "dry"}, ToneDryRun, "dry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.submitting, tt.errMsg, tt.result)
			if got.Tone != tt.wantTone {
				t.Errorf("Tone = %q, want %q", got.Tone, tt.wantTone)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
			if got.Label == "" {
				t.Error("Label should not be empty")
			}
		})
	}
}

func TestReconcile_DryRunFields(t *testing.T) {
	got := Reconcile(false, "", &workflow.Result{Status: workflow.StatusDryRun, Branch: "feat/1", Commit: "abc"})

	if got.Tone != ToneDryRun {
		t.Errorf("Tone = %q, want %q", got.Tone, ToneDryRun)
	}
	if !got.Has("Branch") || !got.Has("Commit") {
		t.Errorf("Fields = %+v, want Branch and Commit", got.Fields)
	}
	if got.Has("PR URL") {
		t.Errorf("Fields = %+v, must not include PR URL", got.Fields)
	}
}

func TestFields(t *testing.T) {
	fields := Fields(workflow.Result{
		Branch:  "feat/9",
		Commit:  "deadbeef",
		PRTitle: "Fix login",
		PRURL:   "https://github.com/acme/app/pull/9",
	})

	wantLabels := []string{"Branch", "Commit", "PR Title", "PR URL"}
	if len(fields) != len(wantLabels) {
		t.Fatalf("len(Fields()) = %d, want %d", len(fields), len(wantLabels))
	}
	for i, f := range fields {
		if f.Label != wantLabels[i] {
			t.Errorf("fields[%d].Label = %q, want %q", i, f.Label, wantLabels[i])
		}
		if f.Link != (f.Label == "PR URL") {
			t.Errorf("fields[%d].Link = %v for %q", i, f.Link, f.Label)
		}
	}

	if got := Fields(workflow.Result{}); got != nil {
		t.Errorf("Fields(empty) = %+v, want nil", got)
	}
}
