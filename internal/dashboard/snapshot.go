package dashboard

import (
	"time"

	"github.com/Iron-Ham/prflow/internal/agents"
	"github.com/Iron-Ham/prflow/internal/outcome"
	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/timeline"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// StreamStatus is the state of the active run's subscription.
type StreamStatus string

const (
	StreamIdle       StreamStatus = "idle"
	StreamConnecting StreamStatus = "connecting"
	StreamOpen       StreamStatus = "open"
	StreamClosed     StreamStatus = "closed"
	// StreamFailed means the transport dropped. The snapshot keeps the last
	// state it received.
	StreamFailed StreamStatus = "failed"
)

// StepView is one timeline step with its render class.
type StepView struct {
	timeline.Step
	Class timeline.StepClass
}

// Snapshot is an immutable view of the Controller. Slices and maps are
// copies owned by the caller.
type Snapshot struct {
	Generation uint64
	// RequestID is the confirmed correlation id of the run.
	RequestID string
	Request   workflow.RunRequest

	Submitting bool
	StartedAt  time.Time
	SettledAt  time.Time

	Timeline timeline.State
	Steps    []StepView
	Events   []runevent.RuntimeEvent
	// Dropped counts events evicted from the log.
	Dropped int

	Agents  agents.Summaries
	Outcome outcome.View
	Result  *workflow.Result
	Error   string

	Stream    StreamStatus
	StreamErr error
}

// Snapshot returns the current state with every projection recomputed.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		Generation: c.generation,
		RequestID:  c.confirmedID,
		Request:    c.request,
		Submitting: c.submitting,
		StartedAt:  c.startedAt,
		SettledAt:  c.settledAt,
		Timeline:   c.projector.State(),
		Events:     c.log.Snapshot(),
		Dropped:    c.log.Dropped(),
		Error:      c.errMsg,
		Stream:     c.stream,
		StreamErr:  c.streamErr,
	}
	if c.result != nil {
		r := *c.result
		snap.Result = &r
	}
	c.mu.Unlock()

	classes := timeline.Classes(snap.Timeline)
	for i, step := range timeline.Steps() {
		snap.Steps = append(snap.Steps, StepView{Step: step, Class: classes[i]})
	}
	snap.Agents = agents.Project(agents.Input{
		Events:  snap.Events,
		Result:  snap.Result,
		Err:     snap.Error,
		Running: snap.Submitting,
	})
	snap.Outcome = outcome.Reconcile(snap.Submitting, snap.Error, snap.Result)
	return snap
}

// Running reports whether a run request is in flight.
func (s Snapshot) Running() bool {
	return s.Submitting
}

// Settled reports whether the last run has a terminal outcome.
func (s Snapshot) Settled() bool {
	return s.Timeline.Phase.IsTerminal()
}

// Elapsed returns the run duration, up to now while the run is in flight.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	switch {
	case s.StartedAt.IsZero():
		return 0
	case s.SettledAt.IsZero():
		return now.Sub(s.StartedAt)
	default:
		return s.SettledAt.Sub(s.StartedAt)
	}
}
