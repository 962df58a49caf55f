package eventlog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Iron-Ham/prflow/internal/runevent"
)

func numbered(i int) runevent.RuntimeEvent {
	return runevent.RuntimeEvent{Event: "workflow.step", Message: fmt.Sprintf("%d", i)}
}

func TestLog_PushAndSnapshot(t *testing.T) {
	l := New()
	for i := 0; i < 5; i++ {
		l.Push(numbered(i))
	}

	snap := l.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("len(Snapshot()) = %d, want 5", len(snap))
	}
	for i, e := range snap {
		if e.Message != fmt.Sprintf("%d", i) {
			t.Errorf("snap[%d].Message = %q, want %q", i, e.Message, fmt.Sprintf("%d", i))
		}
	}
}

func TestLog_KeepsLastEightyInOrder(t *testing.T) {
	tests := []int{81, 100, 160, 247}

	for _, n := range tests {
		t.Run(fmt.Sprintf("%d events", n), func(t *testing.T) {
			l := New()
			for i := 0; i < n; i++ {
				l.Push(numbered(i))
				if l.Len() > Capacity {
					t.Fatalf("Len() = %d after %d pushes, exceeds %d", l.Len(), i+1, Capacity)
				}
			}

			snap := l.Snapshot()
			if len(snap) != Capacity {
				t.Fatalf("len(Snapshot()) = %d, want %d", len(snap), Capacity)
			}
			for i, e := range snap {
				want := fmt.Sprintf("%d", n-Capacity+i)
				if e.Message != want {
					t.Errorf("snap[%d].Message = %q, want %q", i, e.Message, want)
				}
			}
			if l.Dropped() != n-Capacity {
				t.Errorf("Dropped() = %d, want %d", l.Dropped(), n-Capacity)
			}
		})
	}
}

func TestLog_EmptySnapshot(t *testing.T) {
	if snap := New().Snapshot(); snap != nil {
		t.Errorf("Snapshot() = %v, want nil", snap)
	}
}

func TestLog_Last(t *testing.T) {
	l := NewWithCapacity(4)
	for i := 0; i < 6; i++ {
		l.Push(numbered(i))
	}

	last := l.Last(2)
	if len(last) != 2 || last[0].Message != "4" || last[1].Message != "5" {
		t.Errorf("Last(2) = %v, want events 4 and 5", last)
	}
	if got := l.Last(10); len(got) != 4 {
		t.Errorf("len(Last(10)) = %d, want 4", len(got))
	}
	if got := l.Last(0); got != nil {
		t.Errorf("Last(0) = %v, want nil", got)
	}
}

func TestLog_CopiesFields(t *testing.T) {
	l := New()
	fields := map[string]string{"step": "load_issue"}
	l.Push(runevent.RuntimeEvent{Fields: fields})
	fields["step"] = "mutated"

	if got := l.Snapshot()[0].Fields["step"]; got != "load_issue" {
		t.Errorf("stored field = %q, want %q", got, "load_issue")
	}
}

func TestLog_DefaultCapacity(t *testing.T) {
	if got := NewWithCapacity(0).Cap(); got != Capacity {
		t.Errorf("Cap() = %d, want %d", got, Capacity)
	}
}

func TestLog_ConcurrentPushSnapshot(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Push(numbered(j))
				_ = l.Snapshot()
			}
		}()
	}
	wg.Wait()

	if l.Len() != Capacity {
		t.Errorf("Len() = %d, want %d", l.Len(), Capacity)
	}
}

func TestNewestAndAny(t *testing.T) {
	events := []runevent.RuntimeEvent{
		{Event: runevent.EventChangeSetGenerated, Message: "first"},
		{Event: runevent.EventWorkflowStep, Message: "step"},
		{Event: runevent.EventChangeSetGenerated, Message: "second"},
	}

	got, ok := Newest(events, runevent.EventChangeSetGenerated)
	if !ok || got.Message != "second" {
		t.Errorf("Newest() = %q, %v; want %q, true", got.Message, ok, "second")
	}
	if Any(events, runevent.EventContractFailed) {
		t.Error("Any() found an event that is not present")
	}
	if !Any(events, runevent.EventWorkflowStep) {
		t.Error("Any() missed a present event")
	}
}
