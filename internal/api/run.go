package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/Iron-Ham/prflow/internal/correlation"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/logging"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// maxErrorBody bounds how much of a failed response is read for its detail.
const maxErrorBody = 64 * 1024

// RunWorkflow submits a run tagged with requestID and blocks until the
// backend answers. It returns the result and the confirmed correlation id:
// the server-echoed id, or requestID when the server did not echo one.
// The request is validated before any I/O and is never retried.
func (c *Client) RunWorkflow(ctx context.Context, req workflow.RunRequest, requestID string) (workflow.Result, string, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return workflow.Result{}, requestID, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return workflow.Result{}, requestID, perrors.Wrap(err, "encode run request")
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	url := c.endpoint(runPath)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return workflow.Result{}, requestID, perrors.Wrap(err, "build run request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if requestID != "" {
		httpReq.Header.Set(correlation.Header, requestID)
	}

	log := c.logger.WithRequest(requestID)
	log.Info("submitting run", "repo", req.Owner+"/"+req.Repo, "issue", req.IssueNumber, "dry_run", req.DryRun)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		classified := c.classifyTransportError(ctx, "run workflow", url, requestID, err)
		logFailure(log, "run request failed", classified, "error", classified)
		return workflow.Result{}, requestID, classified
	}
	defer func() { _ = resp.Body.Close() }()

	confirmed := correlation.Confirm(requestID, resp.Header.Get(correlation.Header))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := backendError("run workflow", url, resp).WithRequestID(confirmed)
		logFailure(log, "backend rejected run", reqErr, "status", resp.StatusCode, "detail", reqErr.Detail)
		return workflow.Result{}, confirmed, reqErr
	}

	var result workflow.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		decodeErr := perrors.NewRequestError(perrors.KindDecode, "run workflow", err).
			WithURL(url).WithStatus(resp.StatusCode).WithRequestID(confirmed)
		logFailure(log, "unreadable run response", decodeErr, "error", err)
		return workflow.Result{}, confirmed, decodeErr
	}

	log.Info("run completed", "status", result.Status, "branch", result.Branch)
	return result, confirmed, nil
}

// logFailure logs a failed run at the level its error's severity calls for.
func logFailure(log *logging.Logger, msg string, err error, args ...any) {
	sev := perrors.GetSeverity(err)
	args = append(args, "severity", sev.String())
	switch sev {
	case perrors.SeverityDebug, perrors.SeverityInfo:
		log.Info(msg, args...)
	case perrors.SeverityWarning:
		log.Warn(msg, args...)
	default:
		log.Error(msg, args...)
	}
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) (workflow.HealthStatus, error) {
	url := c.endpoint(healthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return workflow.HealthStatus{}, perrors.Wrap(err, "build health request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.retryingClient.Do(req)
	if err != nil {
		return workflow.HealthStatus{}, c.classifyTransportError(ctx, "health check", url, "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return workflow.HealthStatus{}, backendError("health check", url, resp).WithDetail("Health check failed")
	}

	var status workflow.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return workflow.HealthStatus{}, perrors.NewRequestError(perrors.KindDecode, "health check", err).WithURL(url)
	}
	return status, nil
}

// backendError reads the {detail} body of a non-2xx response. A missing or
// unparseable detail leaves Detail empty so callers fall back to a generic
// message.
func backendError(op, url string, resp *http.Response) *perrors.RequestError {
	reqErr := perrors.NewRequestError(perrors.KindBackend, op, nil).WithURL(url).WithStatus(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return reqErr
	}
	var payload struct {
		Detail *string `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Detail != nil {
		reqErr.WithDetail(*payload.Detail)
	}
	return reqErr
}

// classifyTransportError turns a failed round trip into a typed error.
// Connectivity failures become network RequestErrors; a request abandoned by
// its own deadline becomes a TimeoutError; caller cancellation is reported as
// canceled. Anything else is returned with its raw message.
func (c *Client) classifyTransportError(ctx context.Context, op, url, requestID string, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) && c.requestTimeout > 0:
		return perrors.NewTimeoutError(op, c.requestTimeout).WithCause(err)
	case ctx.Err() != nil:
		return perrors.NewRequestError(perrors.KindCanceled, op, ctx.Err()).WithURL(url).WithRequestID(requestID)
	case isConnectivityError(err):
		return perrors.NewRequestError(perrors.KindNetwork, op, err).WithURL(url).WithRequestID(requestID)
	default:
		return err
	}
}

// isConnectivityError matches failures to reach the backend at all.
func isConnectivityError(err error) bool {
	if isDialError(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
