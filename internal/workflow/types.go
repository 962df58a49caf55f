// Package workflow defines the request and result types of the backend's
// run endpoint.
package workflow

import (
	"strconv"
	"strings"

	"github.com/Iron-Ham/prflow/internal/errors"
)

// DefaultBaseBranch is used when a request leaves the base branch empty.
const DefaultBaseBranch = "main"

// Result statuses returned by the backend.
const (
	StatusSuccess = "success"
	StatusDryRun  = "dry_run"
)

// RunRequest is the body of POST /workflow/run.
type RunRequest struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issue_number"`
	BaseBranch  string `json:"base_branch"`
	DryRun      bool   `json:"dry_run"`
}

// Normalize trims whitespace and fills the default base branch.
func (r RunRequest) Normalize() RunRequest {
	r.Owner = strings.TrimSpace(r.Owner)
	r.Repo = strings.TrimSpace(r.Repo)
	r.BaseBranch = strings.TrimSpace(r.BaseBranch)
	if r.BaseBranch == "" {
		r.BaseBranch = DefaultBaseBranch
	}
	return r
}

// Validate reports every problem with the request.
func (r RunRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Owner) == "" {
		errs = append(errs, errors.NewValidationError("is required").WithField("owner"))
	}
	if strings.TrimSpace(r.Repo) == "" {
		errs = append(errs, errors.NewValidationError("is required").WithField("repo"))
	}
	if r.IssueNumber <= 0 {
		errs = append(errs, errors.NewValidationError("must be greater than 0").WithField("issue_number").WithValue(r.IssueNumber))
	}
	return errors.Join(errs...)
}

// Slug returns owner/repo#issue for display.
func (r RunRequest) Slug() string {
	return r.Owner + "/" + r.Repo + "#" + strconv.Itoa(r.IssueNumber)
}

// Result is the synchronous answer of a run. Optional fields are empty
// when the backend omitted them or sent null.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Branch  string `json:"branch,omitempty"`
	Commit  string `json:"commit,omitempty"`
	PRTitle string `json:"pr_title,omitempty"`
	PRURL   string `json:"pr_url,omitempty"`
}

// IsDryRun reports whether the run computed changes without publishing.
func (r Result) IsDryRun() bool {
	return r.Status == StatusDryRun
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status string `json:"status"`
}

// OK reports whether the backend declared itself healthy.
func (h HealthStatus) OK() bool {
	return strings.EqualFold(h.Status, "ok")
}
