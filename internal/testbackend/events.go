package testbackend

import (
	"strconv"

	"github.com/Iron-Ham/prflow/internal/runevent"
)

// Step returns a workflow.step event.
func Step(step, status, detail string) Event {
	fields := map[string]any{
		runevent.FieldStep:   step,
		runevent.FieldStatus: status,
	}
	if detail != "" {
		fields[runevent.FieldDetail] = detail
	}
	level := "info"
	if status == runevent.StatusError {
		level = "error"
	}
	return Event{Level: level, Event: runevent.EventWorkflowStep, Message: step + " " + status, Fields: fields}
}

// ChangeSet returns a workflow.change_set.generated event. Counts are sent
// as strings, the way the backend serializes them.
func ChangeSet(scope string, total, backend, frontend int) Event {
	return Event{
		Level:   "info",
		Event:   runevent.EventChangeSetGenerated,
		Message: "change set generated",
		Fields: map[string]any{
			runevent.FieldChangeScope:        scope,
			runevent.FieldFilesCount:         strconv.Itoa(total),
			runevent.FieldBackendFilesCount:  strconv.Itoa(backend),
			runevent.FieldFrontendFilesCount: strconv.Itoa(frontend),
		},
	}
}

// ContractFailed returns a workflow.integration_contract.failed event.
func ContractFailed(reason string) Event {
	return Event{
		Level:   "error",
		Event:   runevent.EventContractFailed,
		Message: "integration contract failed",
		Fields:  map[string]any{runevent.FieldError: reason},
	}
}

// HappyPath returns step events that walk every catalog step to completion.
func HappyPath() []Event {
	keys := []string{"load_issue", "prepare_repo", "generate_changes", "validate_payload", "publish_branch", "finalize"}
	var out []Event
	for _, k := range keys {
		out = append(out, Step(k, "started", ""), Step(k, "completed", ""))
	}
	return out
}
