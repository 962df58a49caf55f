// Package eventlog holds the bounded, ordered buffer of runtime events
// received for the active workflow run.
package eventlog

import (
	"sync"

	"github.com/Iron-Ham/prflow/internal/runevent"
)

// Capacity is the number of events retained per run.
const Capacity = 80

// Log is a fixed-size circular buffer of runtime events. When full, the
// oldest event is evicted; surviving entries keep their arrival order.
// It is safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	buf   []runevent.RuntimeEvent
	size  int
	head  int // next write position
	count int
	total int // events ever pushed, including evicted ones
}

// New creates a log with the standard capacity.
func New() *Log {
	return NewWithCapacity(Capacity)
}

// NewWithCapacity creates a log holding at most size events.
// A non-positive size falls back to Capacity.
func NewWithCapacity(size int) *Log {
	if size <= 0 {
		size = Capacity
	}
	return &Log{
		buf:  make([]runevent.RuntimeEvent, size),
		size: size,
	}
}

// Push appends an event, evicting the oldest one when the log is full.
// The event's field map is copied so later mutation by the caller cannot
// alter the stored entry.
func (l *Log) Push(e runevent.RuntimeEvent) {
	if e.Fields != nil {
		cp := make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			cp[k] = v
		}
		e.Fields = cp
	}

	l.mu.Lock()
	l.buf[l.head] = e
	l.head = (l.head + 1) % l.size
	if l.count < l.size {
		l.count++
	}
	l.total++
	l.mu.Unlock()
}

// Snapshot returns the buffered events oldest first. The slice is a copy.
func (l *Log) Snapshot() []runevent.RuntimeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return nil
	}

	result := make([]runevent.RuntimeEvent, l.count)
	if l.count < l.size {
		copy(result, l.buf[:l.count])
	} else {
		n := copy(result, l.buf[l.head:])
		copy(result[n:], l.buf[:l.head])
	}
	return result
}

// Last returns the n most recent events, oldest first.
func (l *Log) Last(n int) []runevent.RuntimeEvent {
	if n <= 0 {
		return nil
	}
	snap := l.Snapshot()
	if n >= len(snap) {
		return snap
	}
	return snap[len(snap)-n:]
}

// Len returns the number of buffered events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Cap returns the buffer capacity.
func (l *Log) Cap() int {
	return l.size
}

// Dropped returns how many events were evicted to make room for newer ones.
func (l *Log) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total - l.count
}

// Newest scans events newest to oldest and returns the first one
// matching the event name.
func Newest(events []runevent.RuntimeEvent, name string) (runevent.RuntimeEvent, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Event == name {
			return events[i], true
		}
	}
	return runevent.RuntimeEvent{}, false
}

// Any reports whether any event carries the given name.
func Any(events []runevent.RuntimeEvent, name string) bool {
	_, ok := Newest(events, name)
	return ok
}
