// Package outcome reconciles the run request's state, its error and its
// result into the status shown to the user.
package outcome

import (
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// Tone is the visual tone of the status.
type Tone string

const (
	ToneIdle    Tone = "idle"
	ToneRunning Tone = "running"
	ToneError   Tone = "error"
	ToneDryRun  Tone = "dryrun"
	ToneSuccess Tone = "success"
)

// Field is one displayed result field.
type Field struct {
	Label string
	Value string
	Link  bool
}

// View is the reconciled presentation state.
type View struct {
	Label   string
	Tone    Tone
	Message string
	Fields  []Field
}

const (
	idleMessage    = "Fill in the form and start a run to see live results."
	runningMessage = "The backend is executing the workflow."
)

// Reconcile combines the request state into a View. Precedence is
// submitting, then error, then the result status, then idle. errMsg is the
// user-facing error text; an empty string means no error.
func Reconcile(submitting bool, errMsg string, result *workflow.Result) View {
	switch {
	case submitting:
		return View{Label: "Running", Tone: ToneRunning, Message: runningMessage}
	case errMsg != "":
		return View{Label: "Failed", Tone: ToneError, Message: errMsg}
	case result != nil:
		v := View{Label: "Completed", Tone: ToneSuccess, Message: result.Message, Fields: Fields(*result)}
		if result.IsDryRun() {
			v.Label = "Dry run completed"
			v.Tone = ToneDryRun
		}
		return v
	default:
		return View{Label: "Waiting for run", Tone: ToneIdle, Message: idleMessage}
	}
}

// Fields returns the non-empty optional fields of a result in display
// order. The PR URL is the only link.
func Fields(r workflow.Result) []Field {
	candidates := []Field{
		{Label: "Branch", Value: r.Branch},
		{Label: "Commit", Value: r.Commit},
		{Label: "PR Title", Value: r.PRTitle},
		{Label: "PR URL", Value: r.PRURL, Link: true},
	}
	var out []Field
	for _, f := range candidates {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// Has reports whether the view displays a field with the given label.
func (v View) Has(label string) bool {
	for _, f := range v.Fields {
		if f.Label == label {
			return true
		}
	}
	return false
}
