package ingest

import (
	"context"
	"errors"
	"sync"
)

// ErrSubscribeRejected is returned by ChannelTransport.Subscribe for ids
// registered with Reject.
var ErrSubscribeRejected = errors.New("subscription rejected")

// ChannelTransport is an in-memory Transport. Every correlation id maps to
// one Stream that the test (or an embedding program) feeds by hand.
type ChannelTransport struct {
	mu       sync.Mutex
	streams  map[string]*Stream
	rejected map[string]error
	opened   chan string
}

// NewChannelTransport creates an empty transport.
func NewChannelTransport() *ChannelTransport {
	return &ChannelTransport{
		streams:  make(map[string]*Stream),
		rejected: make(map[string]error),
		opened:   make(chan string, 16),
	}
}

// Stream returns the stream for id, creating it if needed. Payloads sent
// before the subscription opens are buffered.
func (t *ChannelTransport) Stream(id string) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.streams[id]
	if !ok {
		s = newStream()
		t.streams[id] = s
	}
	return s
}

// Reject makes the next Subscribe for id fail with err.
func (t *ChannelTransport) Reject(id string, err error) {
	if err == nil {
		err = ErrSubscribeRejected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejected[id] = err
}

// Opened delivers the id of every successful Subscribe call. Sends are
// dropped when nobody drains the channel.
func (t *ChannelTransport) Opened() <-chan string {
	return t.opened
}

// Subscribe implements Transport.
func (t *ChannelTransport) Subscribe(ctx context.Context, id string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	if err, ok := t.rejected[id]; ok {
		delete(t.rejected, id)
		t.mu.Unlock()
		return nil, err
	}
	t.mu.Unlock()

	s := t.Stream(id)
	select {
	case t.opened <- id:
	default:
	}
	return s, nil
}

// Stream is one in-memory subscription.
type Stream struct {
	payloads chan []byte
	done     chan struct{}
	senders  sync.WaitGroup

	mu       sync.Mutex
	err      error
	finished bool
	closed   bool
}

func newStream() *Stream {
	return &Stream{payloads: make(chan []byte, 256), done: make(chan struct{})}
}

// Send queues a raw payload, blocking while the buffer is full. It reports
// false once the stream has ended, including when it ends mid-send.
func (s *Stream) Send(raw []byte) bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.senders.Add(1)
	s.mu.Unlock()
	defer s.senders.Done()

	select {
	case s.payloads <- raw:
		return true
	case <-s.done:
		return false
	}
}

// SendString is Send for string payloads.
func (s *Stream) SendString(raw string) bool {
	return s.Send([]byte(raw))
}

// End finishes the stream from the server side with err (nil for a clean
// end).
func (s *Stream) End(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.finished = true
	close(s.done)
	s.mu.Unlock()

	// payloads is closed only once no Send can still write to it.
	s.senders.Wait()
	close(s.payloads)
}

// Closed reports whether the subscriber closed the stream.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Payloads implements Subscription.
func (s *Stream) Payloads() <-chan []byte {
	return s.payloads
}

// Err implements Subscription.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements Subscription.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.End(nil)
	return nil
}
