// Package agents derives a per-agent status summary for a settled run from
// the buffered runtime events and the run result.
//
// Project is a pure function. It holds no state and returns identical
// output for identical input.
package agents

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Iron-Ham/prflow/internal/eventlog"
	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// ID identifies one of the backend's agents.
type ID string

const (
	BackendDev          ID = "backend_dev"
	FrontendDev         ID = "frontend_dev"
	IntegrationEngineer ID = "integration_engineer"
	QAReviewer          ID = "qa_reviewer"
	GitIntegrator       ID = "git_integrator"
)

// Order lists the agents in display order.
var Order = []ID{BackendDev, FrontendDev, IntegrationEngineer, QAReviewer, GitIntegrator}

// Title returns the display title of an agent.
func (id ID) Title() string {
	switch id {
	case BackendDev:
		return "Backend Dev"
	case FrontendDev:
		return "Frontend Dev"
	case IntegrationEngineer:
		return "Integration Engineer"
	case QAReviewer:
		return "QA Reviewer"
	case GitIntegrator:
		return "Git Integrator"
	default:
		return string(id)
	}
}

// Summary is the derived status of one agent.
type Summary struct {
	LastAction string
	Delivered  string
}

// Summaries maps every agent to its summary.
type Summaries map[ID]Summary

// Placeholder is reported for every agent while a run is in flight or
// before any run has settled.
var Placeholder = Summary{LastAction: "awaiting execution", Delivered: "-"}

// GenericContractViolation is the QA failure text used when the run
// reported a contract violation without an error message.
const GenericContractViolation = "integration contract violation detected"

// ChangeSet is the change-set metadata reported by the newest
// workflow.change_set.generated event.
type ChangeSet struct {
	Scope         string
	Total         int
	BackendFiles  int
	FrontendFiles int
}

// Input is everything Project reads.
type Input struct {
	Events  []runevent.RuntimeEvent
	Result  *workflow.Result
	Err     string
	Running bool
}

// Project derives the summaries for every agent.
func Project(in Input) Summaries {
	out := make(Summaries, len(Order))
	if in.Running || (in.Result == nil && in.Err == "") {
		for _, id := range Order {
			out[id] = Placeholder
		}
		return out
	}

	cs := LatestChangeSet(in.Events)
	violation := eventlog.Any(in.Events, runevent.EventContractFailed)

	out[BackendDev] = fileSummary("backend", cs.BackendFiles)
	out[FrontendDev] = fileSummary("frontend", cs.FrontendFiles)
	out[IntegrationEngineer] = Summary{
		LastAction: "consolidated change set (scope: " + cs.Scope + ")",
		Delivered:  fmt.Sprintf("%d files in final payload", cs.Total),
	}
	out[QAReviewer] = qaSummary(in.Err, violation)
	out[GitIntegrator] = gitSummary(in.Result, in.Err)
	return out
}

// LatestChangeSet reads the newest change-set event. Missing or unparseable
// counts are 0 and a missing scope is "unknown".
func LatestChangeSet(events []runevent.RuntimeEvent) ChangeSet {
	cs := ChangeSet{Scope: "unknown"}
	ev, ok := eventlog.Newest(events, runevent.EventChangeSetGenerated)
	if !ok {
		return cs
	}
	if scope := strings.TrimSpace(ev.Field(runevent.FieldChangeScope)); scope != "" {
		cs.Scope = scope
	}
	cs.Total = count(ev.Field(runevent.FieldFilesCount))
	cs.BackendFiles = count(ev.Field(runevent.FieldBackendFilesCount))
	cs.FrontendFiles = count(ev.Field(runevent.FieldFrontendFilesCount))
	return cs
}

func count(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func fileSummary(area string, n int) Summary {
	if n == 0 {
		return Summary{
			LastAction: "no " + area + " files changed",
			Delivered:  "0 files",
		}
	}
	noun := "files"
	if n == 1 {
		noun = "file"
	}
	return Summary{
		LastAction: "generated " + area + " changes",
		Delivered:  fmt.Sprintf("%d %s %s", n, area, noun),
	}
}

func qaSummary(errMsg string, violation bool) Summary {
	if errMsg == "" && !violation {
		return Summary{LastAction: "validated payload against contract", Delivered: "PASS"}
	}
	reason := errMsg
	if reason == "" {
		reason = GenericContractViolation
	}
	return Summary{LastAction: "validation failed", Delivered: "FAIL: " + reason}
}

func gitSummary(result *workflow.Result, errMsg string) Summary {
	if errMsg != "" {
		return Summary{LastAction: "run failed before publication", Delivered: errMsg}
	}
	if result == nil {
		return Placeholder
	}
	if result.IsDryRun() {
		return Summary{
			LastAction: "dry run: nothing published",
			Delivered:  fmt.Sprintf("planned branch %s, commit %s", orDash(result.Branch), orDash(result.Commit)),
		}
	}
	delivered := "branch " + orDash(result.Branch)
	if result.PRURL != "" {
		delivered += ", PR " + result.PRURL
	} else {
		delivered += ", PR not created"
	}
	return Summary{LastAction: "published branch " + orDash(result.Branch), Delivered: delivered}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
