// Package dashboard is the reconciliation engine behind the run dashboard.
//
// A Controller owns exactly one active run. Submitting a run mints a
// correlation id, opens the event subscription for it and sends the run
// request; stream events and the request's outcome then arrive concurrently
// and are folded into one state behind a single mutex. Every callback carries
// the generation of the run it was started for, and callbacks of a superseded
// generation are dropped. Readers take immutable Snapshots.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/prflow/internal/correlation"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/event"
	"github.com/Iron-Ham/prflow/internal/eventlog"
	"github.com/Iron-Ham/prflow/internal/ingest"
	"github.com/Iron-Ham/prflow/internal/logging"
	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/telemetry"
	"github.com/Iron-Ham/prflow/internal/timeline"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// DefaultGracePeriod is how long the stream stays open after the run
// request settled, so trailing events are still captured.
const DefaultGracePeriod = 2 * time.Second

// ErrClosed is returned by Submit after Close.
var ErrClosed = perrors.New("dashboard controller closed")

// Runner sends the run request. *api.Client implements it.
type Runner interface {
	RunWorkflow(ctx context.Context, req workflow.RunRequest, requestID string) (workflow.Result, string, error)
}

// Config holds the Controller's collaborators. Runner and Transport are
// required; everything else has a default.
type Config struct {
	Runner    Runner
	Transport ingest.Transport

	Bus         *event.Bus
	Logger      *logging.Logger
	Tracer      trace.Tracer
	Clock       Clock
	Correlator  correlation.Correlator
	GracePeriod time.Duration
}

// Controller reconciles the run request, its event stream and the derived
// projections for one active run at a time.
type Controller struct {
	runner     Runner
	ingestor   *ingest.Ingestor
	bus        *event.Bus
	logger     *logging.Logger
	tracer     trace.Tracer
	clock      Clock
	correlator correlation.Correlator
	grace      time.Duration

	wg conc.WaitGroup

	mu          sync.Mutex
	closed      bool
	generation  uint64
	request     workflow.RunRequest
	clientID    string
	confirmedID string
	log         *eventlog.Log
	handle      *ingest.Handle
	projector   *timeline.Projector
	submitting  bool
	result      *workflow.Result
	errMsg      string
	stream      StreamStatus
	streamErr   error
	startedAt   time.Time
	settledAt   time.Time
	cancelRun   context.CancelFunc
	graceTimer  Timer
	span        *telemetry.RunSpan
}

// New creates a Controller in the idle state.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = event.NewBus(logger)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	grace := cfg.GracePeriod
	if grace < 0 {
		grace = 0
	}
	return &Controller{
		runner:     cfg.Runner,
		ingestor:   ingest.New(cfg.Transport, logger),
		bus:        bus,
		logger:     logger.WithComponent("dashboard"),
		tracer:     cfg.Tracer,
		clock:      clock,
		correlator: cfg.Correlator,
		grace:      grace,
		log:        eventlog.New(),
		projector:  timeline.NewProjector(),
		stream:     StreamIdle,
	}
}

// Bus returns the bus the Controller publishes on.
func (c *Controller) Bus() *event.Bus {
	return c.bus
}

// Submit starts a new run and returns its identity. Any active run is
// abandoned: its subscription is closed, its request canceled and its late
// callbacks are ignored. The request is validated first; an invalid request
// leaves the current state untouched.
func (c *Controller) Submit(ctx context.Context, req workflow.RunRequest) (event.Run, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return event.Run{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return event.Run{}, ErrClosed
	}
	c.teardownLocked()

	c.generation++
	gen := c.generation
	id := c.correlator.Next()
	run := event.Run{RequestID: id, Generation: gen}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelRun = cancel
	c.request = req
	c.clientID = id
	c.confirmedID = id
	c.log = eventlog.New()
	c.projector.Start()
	c.submitting = true
	c.result = nil
	c.errMsg = ""
	c.stream = StreamConnecting
	c.streamErr = nil
	c.startedAt = c.clock.Now()
	c.settledAt = time.Time{}
	c.span = telemetry.StartRun(runCtx, c.tracer, req, id)
	spanCtx := c.span.Context(runCtx)
	c.mu.Unlock()

	// run.started reaches subscribers before any event of the run's stream.
	c.logger.WithRun(gen).WithRequest(id).Info("run submitted", "run", req.Slug(), "dry_run", req.DryRun)
	c.bus.Publish(event.NewRunStartedEvent(run, req.Slug(), req.DryRun))

	c.mu.Lock()
	if c.closed || gen != c.generation {
		// Superseded while publishing; teardown already canceled runCtx.
		c.mu.Unlock()
		return run, nil
	}
	c.handle = c.ingestor.Open(spanCtx, id, c.log, ingest.Hooks{
		OnOpen:  func() { c.onStreamOpen(gen) },
		OnEvent: func(ev runevent.RuntimeEvent, sig *runevent.StepSignal) { c.onStreamEvent(gen, ev, sig) },
		OnClose: func(err error) { c.onStreamClose(gen, err) },
	})
	c.wg.Go(func() {
		result, confirmed, err := c.runner.RunWorkflow(spanCtx, req, id)
		c.settle(gen, result, confirmed, err)
	})
	c.mu.Unlock()
	return run, nil
}

// teardownLocked releases the active run's resources. c.mu must be held.
func (c *Controller) teardownLocked() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	if c.span != nil && c.submitting {
		c.span.End(c.confirmedID, workflow.Result{}, perrors.ErrCanceled)
	}
	c.span = nil
}

func (c *Controller) onStreamOpen(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.stream != StreamConnecting {
		return
	}
	c.stream = StreamOpen
}

func (c *Controller) onStreamEvent(gen uint64, ev runevent.RuntimeEvent, sig *runevent.StepSignal) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	run := event.Run{RequestID: c.clientID, Generation: gen}
	changed := false
	if sig != nil {
		changed = c.projector.Advance(*sig)
		if changed {
			c.span.Step(*sig)
		}
	}
	if ev.Event == runevent.EventContractFailed {
		c.span.ContractViolation(ev.Field(runevent.FieldError))
	}
	state := c.projector.State()
	c.mu.Unlock()

	c.bus.Publish(event.NewStreamEventReceived(run, ev))
	if changed {
		c.bus.Publish(event.NewTimelineAdvancedEvent(run, string(state.Phase), state.CurrentStepIndex, state.Detail))
	}
}

func (c *Controller) onStreamClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	run := event.Run{RequestID: c.clientID, Generation: gen}
	if err != nil {
		c.stream = StreamFailed
		c.streamErr = err
	} else {
		c.stream = StreamClosed
	}
	c.handle = nil
	c.mu.Unlock()

	if err != nil {
		c.logger.WithRun(gen).Warn("event stream lost; keeping last known state", "error", err)
	}
	c.bus.Publish(event.NewStreamClosedEvent(run, err))
}

// settle applies the outcome of the run request. The outcome is
// authoritative for the terminal phase regardless of what the stream said.
func (c *Controller) settle(gen uint64, result workflow.Result, confirmed string, err error) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	if confirmed != "" {
		c.confirmedID = confirmed
	}
	run := event.Run{RequestID: c.confirmedID, Generation: gen}
	c.submitting = false
	c.settledAt = c.clock.Now()
	success := err == nil
	if success {
		r := result
		c.result = &r
	} else {
		c.errMsg = perrors.UserMessage(err)
	}
	c.projector.Settle(success)
	state := c.projector.State()
	c.span.End(c.confirmedID, result, err)
	c.span = nil
	c.graceTimer = c.clock.AfterFunc(c.grace, func() { c.closeStream(gen) })
	status, message := result.Status, result.Message
	if !success {
		status, message = "", c.errMsg
	}
	c.mu.Unlock()

	log := c.logger.WithRun(gen).WithRequest(run.RequestID)
	if success {
		log.Info("run settled", "status", result.Status, "branch", result.Branch, "pr_url", result.PRURL)
	} else {
		log.Warn("run failed", "error", err)
	}
	c.bus.Publish(event.NewRunSettledEvent(run, success, status, message))
	c.bus.Publish(event.NewTimelineAdvancedEvent(run, string(state.Phase), state.CurrentStepIndex, state.Detail))
}

// closeStream ends the subscription of gen once its grace period elapsed.
func (c *Controller) closeStream(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.graceTimer = nil
	if c.handle != nil {
		c.handle.Close()
	}
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
}

// Reset returns an idle controller to its initial state. It is a no-op while
// a run is in flight.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting || c.closed {
		return
	}
	c.teardownLocked()
	c.generation++
	c.request = workflow.RunRequest{}
	c.clientID = ""
	c.confirmedID = ""
	c.log = eventlog.New()
	c.projector.Reset()
	c.result = nil
	c.errMsg = ""
	c.stream = StreamIdle
	c.streamErr = nil
	c.startedAt = time.Time{}
	c.settledAt = time.Time{}
}

// Close cancels the active run, closes its subscription and waits for the
// request goroutine to return. It is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handle := c.handle
	c.teardownLocked()
	c.mu.Unlock()

	c.wg.Wait()
	if handle != nil {
		<-handle.Done()
	}
}
