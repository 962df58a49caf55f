// Package testutil provides testing utilities for prflow tests.
package testutil

import (
	"testing"
	"time"

	"github.com/Iron-Ham/prflow/internal/api"
	"github.com/Iron-Ham/prflow/internal/testbackend"
)

// DefaultTimeout bounds WaitFor.
const DefaultTimeout = 2 * time.Second

// WaitFor polls cond until it holds, failing the test after DefaultTimeout.
func WaitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// StartBackend starts b and returns a client for it. Connection retries are
// disabled so a stopped backend fails fast.
func StartBackend(t testing.TB, b *testbackend.Backend, opts ...api.Option) *api.Client {
	t.Helper()
	srv := b.Start(t)
	opts = append([]api.Option{api.WithRetryBudget(0), api.WithRequestTimeout(5 * time.Second)}, opts...)
	client, err := api.NewClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}
