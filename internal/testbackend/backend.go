// Package testbackend is a scripted in-process workflow backend for
// integration tests. It serves the run, stream and health endpoints with
// gin and replays a Script for every run request it receives.
package testbackend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Iron-Ham/prflow/internal/correlation"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// Event is one scripted runtime event. Timestamp and request id are filled
// in when the event is written to the stream.
type Event struct {
	Level   string
	Event   string
	Message string
	Fields  map[string]any
}

// Script describes how the backend answers the next run request.
type Script struct {
	// Events are written to the run's stream before the response is sent.
	Events []Event
	// Trailing events are written after the response is sent.
	Trailing []Event
	Result   workflow.Result
	// Status overrides the response status; non-2xx statuses answer with
	// {"detail": Detail}, or an empty object when Detail is empty.
	Status int
	Detail string
	// EchoID replaces the echoed X-Request-ID header. "-" omits it.
	EchoID string
	// EndStream closes the stream after the last scripted event.
	EndStream bool
}

// RunCall records one received run request.
type RunCall struct {
	RequestID string
	Request   workflow.RunRequest
}

// Option configures a Backend.
type Option func(*Backend)

// WithPingInterval sets how often idle streams receive a keep-alive.
func WithPingInterval(d time.Duration) Option {
	return func(b *Backend) { b.pingInterval = d }
}

// WithStreamWait bounds how long a run request waits for its stream
// subscriber to drain the scripted events.
func WithStreamWait(d time.Duration) Option {
	return func(b *Backend) { b.streamWait = d }
}

// Backend is the scripted backend.
type Backend struct {
	engine       *gin.Engine
	pingInterval time.Duration
	streamWait   time.Duration

	mu      sync.Mutex
	scripts []Script
	topics  map[string]*topic
	runs    []RunCall
	healthy bool
}

type topic struct {
	lines      chan []byte
	pending    atomic.Int64
	subscribed chan struct{}
	subOnce    sync.Once
	end        chan struct{}
	endOnce    sync.Once
}

func newTopic() *topic {
	return &topic{
		lines:      make(chan []byte, 1024),
		subscribed: make(chan struct{}),
		end:        make(chan struct{}),
	}
}

// New creates a healthy Backend with an empty script queue. Runs without a
// queued script succeed with status "success".
func New(opts ...Option) *Backend {
	gin.SetMode(gin.TestMode)
	b := &Backend{
		engine:       gin.New(),
		pingInterval: 15 * time.Second,
		streamWait:   2 * time.Second,
		topics:       make(map[string]*topic),
		healthy:      true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.engine.Use(gin.Recovery())
	b.registerRoutes()
	return b
}

func (b *Backend) registerRoutes() {
	b.engine.GET("/health", b.health)
	b.engine.POST("/workflow/run", b.run)
	b.engine.GET("/workflow/stream/:id", b.stream)
}

// Handler returns the backend's HTTP handler.
func (b *Backend) Handler() http.Handler {
	return b.engine
}

// Start serves the backend on a loopback port until the test ends.
func (b *Backend) Start(t interface{ Cleanup(func()) }) *httptest.Server {
	srv := httptest.NewServer(b.engine)
	t.Cleanup(func() {
		b.closeTopics()
		srv.Close()
	})
	return srv
}

// Enqueue queues scripts for the following run requests, in order.
func (b *Backend) Enqueue(scripts ...Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts = append(b.scripts, scripts...)
}

// SetHealthy switches the health endpoint between 200 and 503.
func (b *Backend) SetHealthy(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = ok
}

// Runs returns the run requests received so far.
func (b *Backend) Runs() []RunCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RunCall, len(b.runs))
	copy(out, b.runs)
	return out
}

func (b *Backend) topic(id string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[id]
	if !ok {
		t = newTopic()
		b.topics[id] = t
	}
	return t
}

func (b *Backend) closeTopics() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		t.endOnce.Do(func() { close(t.end) })
	}
}

func (b *Backend) nextScript() Script {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.scripts) == 0 {
		return Script{Result: workflow.Result{Status: workflow.StatusSuccess, Message: "Workflow completed"}}
	}
	s := b.scripts[0]
	b.scripts = b.scripts[1:]
	return s
}

func (b *Backend) health(c *gin.Context) {
	b.mu.Lock()
	ok := b.healthy
	b.mu.Unlock()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "backend unavailable"})
		return
	}
	c.JSON(http.StatusOK, workflow.HealthStatus{Status: "ok"})
}

func (b *Backend) run(c *gin.Context) {
	id := c.GetHeader(correlation.Header)
	var req workflow.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	b.runs = append(b.runs, RunCall{RequestID: id, Request: req})
	b.mu.Unlock()

	script := b.nextScript()
	t := b.topic(id)
	b.publish(t, id, script.Events)
	b.awaitDelivery(c, t)

	switch script.EchoID {
	case "-":
	case "":
		c.Header(correlation.Header, id)
	default:
		c.Header(correlation.Header, script.EchoID)
	}

	status := script.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= 200 && status <= 299 {
		c.JSON(status, script.Result)
	} else if script.Detail != "" {
		c.JSON(status, gin.H{"detail": script.Detail})
	} else {
		c.JSON(status, gin.H{})
	}

	b.publish(t, id, script.Trailing)
	if script.EndStream {
		t.endOnce.Do(func() { close(t.end) })
	}
}

func (b *Backend) publish(t *topic, id string, events []Event) {
	for _, ev := range events {
		line, err := json.Marshal(map[string]any{
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
			"level":      ev.Level,
			"event":      ev.Event,
			"request_id": id,
			"fields":     ev.Fields,
			"message":    ev.Message,
		})
		if err != nil {
			continue
		}
		t.pending.Add(1)
		t.lines <- line
	}
}

// awaitDelivery waits until the run's stream subscriber flushed every
// published event, or the stream wait elapsed.
func (b *Backend) awaitDelivery(c *gin.Context, t *topic) {
	timeout := time.NewTimer(b.streamWait)
	defer timeout.Stop()
	select {
	case <-t.subscribed:
	case <-timeout.C:
		return
	case <-c.Request.Context().Done():
		return
	}

	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for t.pending.Load() > 0 {
		select {
		case <-tick.C:
		case <-timeout.C:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (b *Backend) stream(c *gin.Context) {
	t := b.topic(c.Param("id"))

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	t.subOnce.Do(func() { close(t.subscribed) })

	var pings <-chan time.Time
	if b.pingInterval > 0 {
		ping := time.NewTicker(b.pingInterval)
		defer ping.Stop()
		pings = ping.C
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case line := <-t.lines:
			_, _ = w.Write(append(line, '\n'))
			c.Writer.Flush()
			t.pending.Add(-1)
			return true
		case <-pings:
			_, _ = w.Write([]byte(`{"type":"ping"}` + "\n"))
			return true
		case <-t.end:
			// Drain what is already queued before ending the response.
			for {
				select {
				case line := <-t.lines:
					_, _ = w.Write(append(line, '\n'))
					t.pending.Add(-1)
				default:
					return false
				}
			}
		case <-c.Request.Context().Done():
			return false
		}
	})
}
