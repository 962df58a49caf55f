package tui

import (
	"time"

	"github.com/Iron-Ham/prflow/internal/config"
	"github.com/Iron-Ham/prflow/internal/event"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// tickMsg refreshes the run clock.
type tickMsg time.Time

// busEventMsg carries a controller event into the program.
type busEventMsg struct {
	event event.Event
}

// submittedMsg is the outcome of Controller.Submit.
type submittedMsg struct {
	run event.Run
	err error
}

// healthMsg is the outcome of a health check.
type healthMsg struct {
	status workflow.HealthStatus
	err    error
}

// configReloadedMsg is sent when the config file changed on disk.
type configReloadedMsg struct {
	cfg *config.Config
}
