package tui

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/prflow/internal/config"
	"github.com/Iron-Ham/prflow/internal/dashboard"
	"github.com/Iron-Ham/prflow/internal/event"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

// App wraps the Bubbletea program
type App struct {
	model Model
	ctrl  *dashboard.Controller
	bus   *event.Bus

	mu      sync.Mutex
	program *tea.Program
}

// New creates the dashboard application. Health checks are published on the
// controller's bus as HealthCheckedEvents.
func New(ctx context.Context, ctrl *dashboard.Controller, opts Options) *App {
	bus := ctrl.Bus()
	if check := opts.Health; check != nil {
		opts.Health = func(ctx context.Context) (workflow.HealthStatus, error) {
			status, err := check(ctx)
			bus.Publish(event.NewHealthCheckedEvent(status.Status, err))
			return status, err
		}
	}
	return &App{
		model: NewModel(ctx, ctrl, opts),
		ctrl:  ctrl,
		bus:   bus,
	}
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	program := tea.NewProgram(
		a.model,
		tea.WithAltScreen(),
	)
	a.mu.Lock()
	a.program = program
	a.mu.Unlock()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			program.Send(tea.Quit())
		case <-done:
		}
	}()

	// Send returns without blocking once the program has exited.
	subID := a.bus.SubscribeAll(func(e event.Event) {
		program.Send(busEventMsg{event: e})
	})

	_, err := program.Run()

	a.bus.Unsubscribe(subID)
	close(done)
	signal.Stop(sigChan)
	return err
}

// ReloadConfig applies a config file change to the running dashboard.
func (a *App) ReloadConfig(path string, cfg *config.Config) {
	a.bus.Publish(event.NewConfigReloadedEvent(path))

	a.mu.Lock()
	program := a.program
	a.mu.Unlock()
	if program != nil {
		program.Send(configReloadedMsg{cfg: cfg})
	}
}
