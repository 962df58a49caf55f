package api

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/Iron-Ham/prflow/internal/correlation"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/ingest"
)

var _ ingest.Transport = (*Client)(nil)

// Subscribe opens the newline-delimited event stream of correlationID. It
// implements ingest.Transport. The returned subscription delivers each
// non-empty line as one payload until the server ends the stream, ctx is
// canceled, or Close is called.
func (c *Client) Subscribe(ctx context.Context, correlationID string) (ingest.Subscription, error) {
	endpoint := c.endpoint(streamPath + url.PathEscape(correlationID))

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, perrors.Wrap(err, "build stream request")
	}
	req.Header.Set("Accept", "application/x-ndjson")
	req.Header.Set(correlation.Header, correlationID)

	resp, err := c.retryingClient.Do(req)
	if err != nil {
		cancel()
		return nil, c.classifyTransportError(ctx, "subscribe", endpoint, correlationID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		cancel()
		return nil, backendError("subscribe", endpoint, resp).WithRequestID(correlationID)
	}

	s := &streamSubscription{
		cancel:   cancel,
		body:     resp.Body,
		payloads: make(chan []byte),
	}
	go func() {
		<-ctx.Done()
		_ = resp.Body.Close()
	}()
	go s.read(ctx, c.maxPayload)

	c.logger.WithRequest(correlationID).Debug("subscribed to event stream", "url", endpoint)
	return s, nil
}

type streamSubscription struct {
	cancel   context.CancelFunc
	body     io.ReadCloser
	payloads chan []byte

	mu  sync.Mutex
	err error
}

func (s *streamSubscription) read(ctx context.Context, maxPayload int) {
	defer s.cancel()
	defer close(s.payloads)

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPayload)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		payload := append([]byte(nil), line...)
		select {
		case s.payloads <- payload:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		if err == bufio.ErrTooLong {
			err = fmt.Errorf("event payload exceeds %d bytes: %w", maxPayload, err)
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

func (s *streamSubscription) Payloads() <-chan []byte {
	return s.payloads
}

func (s *streamSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the request, which closes the body and ends the reader.
// It is safe to call more than once.
func (s *streamSubscription) Close() error {
	s.cancel()
	return nil
}
