// Package timeline tracks the progress of one workflow run through the
// backend's fixed sequence of steps.
//
// The stream only reports progress on a best-effort basis. The synchronous
// run response is authoritative for the terminal phase, so Settle always
// draws the timeline to completion regardless of what the stream reported.
package timeline

import "github.com/Iron-Ham/prflow/internal/runevent"

// Phase is the lifecycle state of a run as observed by the client.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// IsTerminal returns true if the phase is success or error.
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// Step is one entry of the static step catalog.
type Step struct {
	Key         string
	Order       int
	Title       string
	Description string
}

var catalog = []Step{
	{Key: "load_issue", Order: 0, Title: "Load GitHub issue", Description: "Fetch the issue title and body to seed the run context."},
	{Key: "prepare_repo", Order: 1, Title: "Prepare repository", Description: "Clone the target repository and configure the commit identity."},
	{Key: "generate_changes", Order: 2, Title: "Run agent crew", Description: "Backend, frontend, integration, QA and git agents produce the change set."},
	{Key: "validate_payload", Order: 3, Title: "Validate payload", Description: "Check the final JSON, file scope and security guardrails."},
	{Key: "publish_branch", Order: 4, Title: "Publish branch", Description: "Write the final files and push the commit to a feature branch."},
	{Key: "finalize", Order: 5, Title: "Open pull request", Description: "Open the pull request, or finish without publishing in dry-run mode."},
}

// aliases maps step keys emitted by older backends onto the catalog.
var aliases = map[string]string{
	"run_crew": "generate_changes",
}

// LastIndex is the order of the final step.
const LastIndex = 5

// Steps returns a copy of the step catalog in order.
func Steps() []Step {
	out := make([]Step, len(catalog))
	copy(out, catalog)
	return out
}

// IndexOf returns the order of the step with the given key.
func IndexOf(key string) (int, bool) {
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	for _, s := range catalog {
		if s.Key == key {
			return s.Order, true
		}
	}
	return 0, false
}

// State is the projected timeline for the active run.
type State struct {
	Phase            Phase
	CurrentStepIndex int
	// Detail is the detail text of the most recent accepted step signal.
	Detail string
}

// Initial returns the state before any run was submitted.
func Initial() State {
	return State{Phase: PhaseIdle, CurrentStepIndex: -1}
}

// Projector is the timeline state machine. The zero value is not usable;
// create one with NewProjector. Projector is not safe for concurrent use;
// callers serialise access.
type Projector struct {
	state State
}

// NewProjector returns a projector in the idle state.
func NewProjector() *Projector {
	return &Projector{state: Initial()}
}

// State returns the current state.
func (p *Projector) State() State {
	return p.state
}

// Start moves the timeline into the running phase with no step reached.
// It is valid from any phase; each call begins a fresh run.
func (p *Projector) Start() {
	p.state = State{Phase: PhaseRunning, CurrentStepIndex: -1}
}

// Advance applies a step signal. It returns true when the state changed.
//
// Signals are only honoured while running and unknown keys are ignored,
// whatever their status. Known keys move the index to the
// maximum of its current value and the step's order, so duplicates and
// regressions have no effect. An error status completes the timeline in the
// error phase.
func (p *Projector) Advance(sig runevent.StepSignal) bool {
	if p.state.Phase != PhaseRunning {
		return false
	}
	i, ok := IndexOf(sig.Step)
	if !ok {
		return false
	}
	if sig.IsError() {
		p.state = State{Phase: PhaseError, CurrentStepIndex: LastIndex, Detail: sig.Detail}
		return true
	}
	if i < p.state.CurrentStepIndex {
		return false
	}
	changed := i > p.state.CurrentStepIndex || p.state.Detail != sig.Detail
	p.state.CurrentStepIndex = i
	p.state.Detail = sig.Detail
	return changed
}

// Settle applies the outcome of the run request. The response overrides
// anything the stream reported, including an earlier stream error.
func (p *Projector) Settle(success bool) {
	phase := PhaseError
	if success {
		phase = PhaseSuccess
	}
	p.state = State{Phase: phase, CurrentStepIndex: LastIndex, Detail: p.state.Detail}
}

// Reset returns the projector to idle.
func (p *Projector) Reset() {
	p.state = Initial()
}

// StepClass is the render class of one step.
type StepClass string

const (
	ClassPending StepClass = "pending"
	ClassActive  StepClass = "active"
	ClassDone    StepClass = "done"
	ClassSuccess StepClass = "success"
	ClassError   StepClass = "error"
)

// Class derives the render class of the step at index i from the state.
func Class(s State, i int) StepClass {
	switch {
	case s.Phase == PhaseIdle:
		return ClassPending
	case s.Phase == PhaseError && i == LastIndex:
		return ClassError
	case s.Phase == PhaseSuccess && i == LastIndex:
		return ClassSuccess
	case i < s.CurrentStepIndex:
		return ClassDone
	case s.Phase == PhaseRunning && i == s.CurrentStepIndex:
		return ClassActive
	default:
		return ClassPending
	}
}

// Classes returns the render class of every catalog step.
func Classes(s State) []StepClass {
	out := make([]StepClass, len(catalog))
	for i := range catalog {
		out[i] = Class(s, i)
	}
	return out
}
