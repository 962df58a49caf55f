package event

import (
	"time"

	"github.com/Iron-Ham/prflow/internal/runevent"
)

// Event type names. Convention: "category.action".
const (
	TypeRunStarted       = "run.started"
	TypeRunSettled       = "run.settled"
	TypeStreamEvent      = "stream.event"
	TypeStreamClosed     = "stream.closed"
	TypeTimelineAdvanced = "timeline.advanced"
	TypeHealthChecked    = "health.checked"
	TypeConfigReloaded   = "config.reloaded"
)

// Event is the interface that all events implement.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// Run identifies the run an event belongs to. Generation increases with
// every submitted run, so subscribers can discard events of superseded runs.
type Run struct {
	RequestID  string
	Generation uint64
}

// -----------------------------------------------------------------------------
// Run Lifecycle
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted when a run is submitted.
type RunStartedEvent struct {
	baseEvent
	Run
	Slug   string
	DryRun bool
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(run Run, slug string, dryRun bool) RunStartedEvent {
	return RunStartedEvent{baseEvent: newBaseEvent(TypeRunStarted), Run: run, Slug: slug, DryRun: dryRun}
}

// RunSettledEvent is emitted when the run request returns.
type RunSettledEvent struct {
	baseEvent
	Run
	Success bool
	Status  string // result status on success
	Message string // result message, or the user-facing error text
}

// NewRunSettledEvent creates a RunSettledEvent.
func NewRunSettledEvent(run Run, success bool, status, message string) RunSettledEvent {
	return RunSettledEvent{baseEvent: newBaseEvent(TypeRunSettled), Run: run, Success: success, Status: status, Message: message}
}

// -----------------------------------------------------------------------------
// Stream
// -----------------------------------------------------------------------------

// StreamEventReceived is emitted for every runtime event accepted into the
// log of the active run.
type StreamEventReceived struct {
	baseEvent
	Run
	Event runevent.RuntimeEvent
}

// NewStreamEventReceived creates a StreamEventReceived.
func NewStreamEventReceived(run Run, ev runevent.RuntimeEvent) StreamEventReceived {
	return StreamEventReceived{baseEvent: newBaseEvent(TypeStreamEvent), Run: run, Event: ev}
}

// StreamClosedEvent is emitted when the subscription of a run ends.
// Err is nil for a deliberate close.
type StreamClosedEvent struct {
	baseEvent
	Run
	Err error
}

// NewStreamClosedEvent creates a StreamClosedEvent.
func NewStreamClosedEvent(run Run, err error) StreamClosedEvent {
	return StreamClosedEvent{baseEvent: newBaseEvent(TypeStreamClosed), Run: run, Err: err}
}

// TimelineAdvancedEvent is emitted when a step signal changed the timeline.
type TimelineAdvancedEvent struct {
	baseEvent
	Run
	Phase     string
	StepIndex int
	Detail    string
}

// NewTimelineAdvancedEvent creates a TimelineAdvancedEvent.
func NewTimelineAdvancedEvent(run Run, phase string, stepIndex int, detail string) TimelineAdvancedEvent {
	return TimelineAdvancedEvent{baseEvent: newBaseEvent(TypeTimelineAdvanced), Run: run, Phase: phase, StepIndex: stepIndex, Detail: detail}
}

// -----------------------------------------------------------------------------
// Misc
// -----------------------------------------------------------------------------

// HealthCheckedEvent is emitted after a health check.
type HealthCheckedEvent struct {
	baseEvent
	Status string
	Err    error
}

// NewHealthCheckedEvent creates a HealthCheckedEvent.
func NewHealthCheckedEvent(status string, err error) HealthCheckedEvent {
	return HealthCheckedEvent{baseEvent: newBaseEvent(TypeHealthChecked), Status: status, Err: err}
}

// ConfigReloadedEvent is emitted when the config file changed on disk.
type ConfigReloadedEvent struct {
	baseEvent
	Path string
}

// NewConfigReloadedEvent creates a ConfigReloadedEvent.
func NewConfigReloadedEvent(path string) ConfigReloadedEvent {
	return ConfigReloadedEvent{baseEvent: newBaseEvent(TypeConfigReloaded), Path: path}
}
