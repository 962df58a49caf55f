package event

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/prflow/internal/logging"
	"github.com/Iron-Ham/prflow/internal/runevent"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	called := false
	id := bus.Subscribe(TypeRunStarted, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.Subscribe(TypeRunSettled, func(e Event) {
		received = e
	})

	bus.Publish(NewRunSettledEvent(Run{RequestID: "req-1", Generation: 2}, true, "success", "PR opened"))

	settled, ok := received.(RunSettledEvent)
	if !ok {
		t.Fatalf("received %T, want RunSettledEvent", received)
	}
	if settled.RequestID != "req-1" || settled.Generation != 2 {
		t.Errorf("Run = %+v, want req-1/2", settled.Run)
	}
	if settled.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestBus_PublishOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wildcard") })
	bus.Subscribe(TypeStreamEvent, func(e Event) { order = append(order, "first") })
	bus.Subscribe(TypeStreamEvent, func(e Event) { order = append(order, "second") })

	bus.Publish(NewStreamEventReceived(Run{}, runevent.RuntimeEvent{Event: "workflow.step"}))

	want := "first,second,wildcard"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %q, want %q", got, want)
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TypeHealthChecked, func(e Event) {
		t.Error("Handler should not be called for non-matching event type")
	})
	bus.Publish(NewConfigReloadedEvent("/tmp/config.yaml"))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	id := bus.Subscribe(TypeStreamClosed, func(e Event) { calls++ })
	keep := bus.Subscribe(TypeStreamClosed, func(e Event) { calls += 10 })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe should find the subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe should report not found")
	}

	bus.Publish(NewStreamClosedEvent(Run{}, nil))
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}

	bus.Unsubscribe(keep)
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_PanickingHandler(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logging.NewWriterLogger(&buf, logging.LevelError))

	reached := false
	bus.Subscribe(TypeRunStarted, func(e Event) { panic("boom") })
	bus.Subscribe(TypeRunStarted, func(e Event) { reached = true })

	bus.Publish(NewRunStartedEvent(Run{RequestID: "r"}, "acme/app#1", false))

	if !reached {
		t.Error("handlers after a panicking one should still run")
	}
	if !strings.Contains(buf.String(), "event handler panicked") {
		t.Errorf("panic was not logged: %q", buf.String())
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(TypeRunStarted, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_Concurrent(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				bus.Publish(NewTimelineAdvancedEvent(Run{}, "running", j%6, ""))
			}
		}()
	}
	wg.Wait()

	if count != 200 {
		t.Errorf("count = %d, want 200", count)
	}
}

func TestEventTypes(t *testing.T) {
	run := Run{RequestID: "r", Generation: 1}
	tests := []struct {
		event Event
		want  string
	}{
		{NewRunStartedEvent(run, "a/b#1", true), TypeRunStarted},
		{NewRunSettledEvent(run, false, "", "X"), TypeRunSettled},
		{NewStreamEventReceived(run, runevent.RuntimeEvent{}), TypeStreamEvent},
		{NewStreamClosedEvent(run, nil), TypeStreamClosed},
		{NewTimelineAdvancedEvent(run, "running", 1, ""), TypeTimelineAdvanced},
		{NewHealthCheckedEvent("ok", nil), TypeHealthChecked},
		{NewConfigReloadedEvent("/c.yaml"), TypeConfigReloaded},
	}
	for _, tt := range tests {
		if got := tt.event.EventType(); got != tt.want {
			t.Errorf("EventType() = %q, want %q", got, tt.want)
		}
	}
}
