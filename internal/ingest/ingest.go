// Package ingest owns the event subscription of one run: it opens the
// transport, parses every payload, appends accepted events to the run's
// event log and reports the stream's lifecycle through hooks.
package ingest

import (
	"context"
	"sync"

	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/eventlog"
	"github.com/Iron-Ham/prflow/internal/logging"
	"github.com/Iron-Ham/prflow/internal/runevent"
)

// Subscription is an open event stream. Payloads is closed when the stream
// ends; Err then reports why, or nil for a clean end.
type Subscription interface {
	Payloads() <-chan []byte
	Err() error
	Close() error
}

// Transport opens subscriptions keyed by correlation id.
type Transport interface {
	Subscribe(ctx context.Context, correlationID string) (Subscription, error)
}

// Hooks observe the lifecycle of a handle. All hooks run on the pump
// goroutine, in order: OnOpen at most once, OnEvent per accepted event,
// OnClose exactly once. Any hook may be nil.
type Hooks struct {
	// OnOpen runs once the transport accepted the subscription.
	OnOpen func()
	// OnEvent receives every accepted event in arrival order. signal is
	// non-nil for workflow.step events.
	OnEvent func(ev runevent.RuntimeEvent, signal *runevent.StepSignal)
	// OnClose runs when the stream has ended. err is nil when the handle
	// was closed deliberately or the server ended the stream cleanly.
	OnClose func(err error)
}

// Ingestor opens handles over a transport.
type Ingestor struct {
	transport Transport
	logger    *logging.Logger
}

// New creates an Ingestor. A nil logger discards logs.
func New(transport Transport, logger *logging.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Ingestor{transport: transport, logger: logger.WithComponent("ingest")}
}

// Handle is the live subscription of one correlation id.
type Handle struct {
	id     string
	log    *eventlog.Log
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	sub       Subscription
	err       error
	closed    bool
}

// Open starts a subscription for correlationID without blocking. Accepted
// events are pushed into log, then handed to hooks.OnEvent.
func (i *Ingestor) Open(ctx context.Context, correlationID string, log *eventlog.Log, hooks Hooks) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:     correlationID,
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go i.pump(ctx, h, hooks)
	return h
}

func (i *Ingestor) pump(ctx context.Context, h *Handle, hooks Hooks) {
	logger := i.logger.WithRequest(h.id)
	var streamErr error
	defer func() {
		h.mu.Lock()
		if !h.closed {
			h.err = streamErr
		}
		deliberate := h.closed
		h.mu.Unlock()
		close(h.done)
		if hooks.OnClose != nil {
			if deliberate {
				hooks.OnClose(nil)
			} else {
				hooks.OnClose(streamErr)
			}
		}
	}()

	sub, err := i.transport.Subscribe(ctx, h.id)
	if err != nil {
		if ctx.Err() == nil {
			streamErr = perrors.NewStreamError("subscribe failed", err).WithRequestID(h.id)
			logger.Warn("event stream unavailable", "error", err)
		}
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = sub.Close()
		return
	}
	h.sub = sub
	h.mu.Unlock()
	logger.Debug("event stream opened")
	if hooks.OnOpen != nil {
		hooks.OnOpen()
	}

	payloads := sub.Payloads()
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case raw, ok := <-payloads:
			if !ok {
				if err := sub.Err(); err != nil && ctx.Err() == nil {
					streamErr = perrors.NewStreamError("stream ended", err).WithRequestID(h.id)
					logger.Warn("event stream failed", "error", err)
				} else {
					logger.Debug("event stream closed by server")
				}
				return
			}
			i.accept(ctx, h, raw, hooks.OnEvent, logger)
		}
	}
}

func (i *Ingestor) accept(ctx context.Context, h *Handle, raw []byte, sink func(runevent.RuntimeEvent, *runevent.StepSignal), logger *logging.Logger) {
	ev, kind := runevent.Parse(raw)
	switch kind {
	case runevent.KeepAlive:
		return
	case runevent.Malformed:
		logger.Debug("dropping malformed event payload", "bytes", len(raw))
		return
	}
	// A payload read just before Close must not land in a log the caller
	// already considers finished.
	if ctx.Err() != nil {
		return
	}
	if h.log != nil {
		h.log.Push(ev)
	}
	logger.Debug("runtime event", "event", ev.Event, "level", ev.Level, "message", ev.Message)
	if sink == nil {
		return
	}
	if sig, ok := ev.StepSignal(); ok {
		sink(ev, &sig)
		return
	}
	sink(ev, nil)
}

// ID returns the correlation id of the handle.
func (h *Handle) ID() string {
	return h.id
}

// Log returns the event log the handle appends to.
func (h *Handle) Log() *eventlog.Log {
	return h.log
}

// Close stops the subscription. It is idempotent and does not wait for the
// pump to exit; use Done for that.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		sub := h.sub
		h.mu.Unlock()
		h.cancel()
		if sub != nil {
			_ = sub.Close()
		}
	})
}

// Done is closed once the pump has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err reports the transport failure that ended the stream, if any. It is
// nil while the stream is open and after a deliberate Close.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
