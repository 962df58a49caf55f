package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/prflow/internal/config"
	"github.com/Iron-Ham/prflow/internal/dashboard"
	perrors "github.com/Iron-Ham/prflow/internal/errors"
	"github.com/Iron-Ham/prflow/internal/tui/filter"
	"github.com/Iron-Ham/prflow/internal/tui/styles"
	"github.com/Iron-Ham/prflow/internal/tui/view"
	"github.com/Iron-Ham/prflow/internal/workflow"
)

const (
	healthTimeout = 5 * time.Second
	// Below this width the panels stack in one column.
	twoColumnMinWidth = 90
)

// HealthFunc checks the backend.
type HealthFunc func(ctx context.Context) (workflow.HealthStatus, error)

// Options configures the dashboard model.
type Options struct {
	BaseURL string
	Health  HealthFunc
	Form    config.FormConfig
	TUI     config.TUIConfig
	// Now defaults to time.Now.
	Now func() time.Time
}

// Model is the bubbletea model of the run dashboard. All run state lives in
// the controller; the model keeps the last snapshot plus UI-only state.
type Model struct {
	ctx     context.Context
	ctrl    *dashboard.Controller
	health  HealthFunc
	baseURL string
	now     func() time.Time

	form    runForm
	formErr string
	// pending is set between enter and the Submit result.
	pending bool

	filter     *filter.Filter
	filterMode bool
	filterErr  error
	showFields bool

	spinner spinner.Model
	events  viewport.Model
	shown   int

	snap       dashboard.Snapshot
	healthText string
	healthErr  string

	width, height int
}

// NewModel creates the dashboard model. ctx bounds every run it submits.
func NewModel(ctx context.Context, ctrl *dashboard.Controller, opts Options) Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	f, err := filter.NewWithPattern(opts.TUI.EventFilter)
	if err != nil {
		f = filter.New()
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = styles.Secondary

	m := Model{
		ctx:        ctx,
		ctrl:       ctrl,
		health:     opts.Health,
		baseURL:    opts.BaseURL,
		now:        now,
		form:       newRunForm(opts.Form),
		filter:     f,
		filterErr:  err,
		showFields: opts.TUI.ShowEventFields,
		spinner:    sp,
		events:     viewport.New(80, 10),
	}
	m.snap = ctrl.Snapshot()
	return m
}

// Init starts the clock, the spinner and the first health check.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, tick(), m.checkHealth())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.refresh()
		return m, nil

	case busEventMsg:
		m.refresh()
		return m, nil

	case submittedMsg:
		m.pending = false
		m.formErr = ""
		if msg.err != nil {
			m.formErr = perrors.UserMessage(msg.err)
		}
		m.refresh()
		return m, nil

	case healthMsg:
		m.healthText, m.healthErr = "", ""
		switch {
		case perrors.Is(msg.err, perrors.ErrBackendUnreachable):
			m.healthText = "unreachable"
			m.healthErr = perrors.UserMessage(msg.err)
		case msg.err != nil:
			m.healthErr = perrors.UserMessage(msg.err)
		case msg.status.Status == "":
			m.healthText = "unknown"
		default:
			m.healthText = msg.status.Status
		}
		return m, nil

	case configReloadedMsg:
		if msg.cfg != nil {
			m.filterErr = m.filter.SetPattern(msg.cfg.TUI.EventFilter)
			m.showFields = msg.cfg.TUI.ShowEventFields
			m.refresh()
		}
		return m, nil

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	cmd := m.form.update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.filterMode {
		res := m.filter.HandleKey(msg)
		m.filterErr = res.Err
		if res.ExitMode {
			m.filterMode = false
		}
		m.refresh()
		return m, nil
	}

	switch msg.String() {
	case "ctrl+f":
		m.filterMode = true
		return m, nil
	case "ctrl+t":
		return m, m.checkHealth()
	case "ctrl+r":
		if !m.snap.Running() && !m.pending {
			m.ctrl.Reset()
			m.formErr = ""
			m.refresh()
		}
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.events, cmd = m.events.Update(msg)
		return m, cmd
	case "tab", "down":
		cmd := m.form.next()
		return m, cmd
	case "shift+tab", "up":
		cmd := m.form.prev()
		return m, cmd
	case "enter":
		cmd := m.submit()
		return m, cmd
	}
	cmd := m.form.update(msg)
	return m, cmd
}

// submit validates the form and returns the command that submits the run.
// Submit publishes on the bus, whose handler sends to the program, so it
// must not run inside Update.
func (m *Model) submit() tea.Cmd {
	if m.pending || m.snap.Running() {
		m.formErr = perrors.UserMessage(perrors.ErrRunInProgress)
		return nil
	}
	req, err := m.form.request()
	if err != nil {
		m.formErr = perrors.UserMessage(err)
		return nil
	}
	if err := req.Normalize().Validate(); err != nil {
		m.formErr = perrors.UserMessage(err)
		return nil
	}
	m.formErr = ""
	m.pending = true
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		run, err := ctrl.Submit(ctx, req)
		return submittedMsg{run: run, err: err}
	}
}

func (m Model) checkHealth() tea.Cmd {
	if m.health == nil {
		return nil
	}
	check, parent := m.health, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, healthTimeout)
		defer cancel()
		status, err := check(ctx)
		return healthMsg{status: status, err: err}
	}
}

// refresh takes a new snapshot and re-renders the event log, following the
// tail unless the user scrolled up.
func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	m.layout()

	visible := m.filter.Apply(m.snap.Events)
	m.shown = len(visible)
	atBottom := m.events.AtBottom()
	m.events.SetContent(view.EventLines(visible, m.showFields, m.events.Width))
	if atBottom {
		m.events.GotoBottom()
	}
}

// layout sizes the event viewport to the space the other panels leave.
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	top := lipgloss.Height(m.renderTop())
	help := lipgloss.Height(m.renderHelp())
	frame := styles.Panel.GetVerticalFrameSize() + 1
	m.events.Width = max(m.width-styles.Panel.GetHorizontalFrameSize(), 10)
	m.events.Height = max(m.height-top-help-frame, 3)
}

func (m Model) columns() (left, right int) {
	if m.width < twoColumnMinWidth {
		return m.width, m.width
	}
	left = m.width * 5 / 12
	return left, m.width - left
}

func (m Model) renderTop() string {
	var streamErr string
	if m.snap.StreamErr != nil {
		streamErr = perrors.UserMessage(m.snap.StreamErr)
	}
	header := view.RenderHeader(view.HeaderState{
		BaseURL:   m.baseURL,
		Health:    m.healthText,
		HealthErr: m.healthErr,
		Stream:    m.snap.Stream,
		StreamErr: streamErr,
		RequestID: m.snap.RequestID,
		Elapsed:   m.snap.Elapsed(m.now()),
		Running:   m.snap.Running(),
		Spinner:   m.spinner.View(),
	}, m.width)

	left, right := m.columns()
	form := view.RenderForm(m.form.state(m.snap.Running() || m.pending, m.formErr), left, !m.filterMode)
	steps := view.RenderTimeline(m.snap.Steps, m.snap.Timeline, left)
	result := view.RenderResult(m.snap.Outcome, right)
	agentsPanel := view.RenderAgents(m.snap.Agents, right)

	if m.width < twoColumnMinWidth {
		return lipgloss.JoinVertical(lipgloss.Left, header, form, steps, result, agentsPanel)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.JoinVertical(lipgloss.Left, form, steps),
			lipgloss.JoinVertical(lipgloss.Left, result, agentsPanel),
		),
	)
}

func (m Model) renderHelp() string {
	return view.RenderHelp(view.HelpBarState{
		Running:    m.snap.Running() || m.pending,
		FilterMode: m.filterMode,
		CanReset:   !m.snap.Running() && m.snap.Generation > 0 && !m.snap.StartedAt.IsZero(),
	}, m.width)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var events string
	if m.filterMode {
		events = filter.RenderPanel(m.filter, m.width, m.filterErr)
	} else {
		title := view.EventsTitle(m.shown, len(m.snap.Events), m.snap.Dropped, m.filter.Pattern())
		events = view.RenderEvents(title, m.events.View(), m.width, false)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTop(), events, m.renderHelp())
}
