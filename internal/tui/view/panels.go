package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/prflow/internal/agents"
	"github.com/Iron-Ham/prflow/internal/dashboard"
	"github.com/Iron-Ham/prflow/internal/outcome"
	"github.com/Iron-Ham/prflow/internal/timeline"
	"github.com/Iron-Ham/prflow/internal/tui/styles"
	"github.com/Iron-Ham/prflow/internal/util"
)

// panel wraps body in a titled, bordered box of the given outer width.
func panel(title, body string, width int, focused bool) string {
	style := styles.Panel
	if focused {
		style = styles.PanelFocused
	}
	inner := max(width-style.GetHorizontalFrameSize(), 10)
	content := styles.PanelTitle.Render(title) + "\n" + body
	return style.Width(inner).Render(content)
}

// HeaderState is what the header shows besides the snapshot.
type HeaderState struct {
	BaseURL string
	// Health is the last health check result, "" before the first check.
	Health    string
	HealthErr string
	Stream    dashboard.StreamStatus
	StreamErr string
	RequestID string
	Elapsed   time.Duration
	Running   bool
	Spinner   string
}

// RenderHeader renders the title line and the connection status line.
func RenderHeader(s HeaderState, width int) string {
	title := styles.Title.Render("prflow") + " " + styles.Subtitle.Render("issue → branch → commit → PR")

	parts := []string{styles.Muted.Render("api ") + s.BaseURL}
	switch {
	case s.HealthErr != "":
		parts = append(parts, styles.Error.Render("health: "+s.HealthErr))
	case s.Health != "":
		parts = append(parts, styles.Secondary.Render("health: "+s.Health))
	}
	stream := string(s.Stream)
	if stream == "" {
		stream = string(dashboard.StreamIdle)
	}
	streamText := styles.StatusIcon(stream) + " stream " + stream
	if s.StreamErr != "" {
		streamText += ": " + s.StreamErr
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(styles.StatusColor(stream)).Render(streamText))
	if s.RequestID != "" {
		parts = append(parts, styles.Muted.Render("id ")+s.RequestID)
	}
	if s.Running || s.Elapsed > 0 {
		clock := util.FormatDuration(s.Elapsed)
		if s.Running && s.Spinner != "" {
			clock = s.Spinner + " " + clock
		}
		parts = append(parts, clock)
	}

	status := util.TruncateANSI(strings.Join(parts, styles.Muted.Render("  │  ")), max(width, 10))
	return styles.Header.Width(max(width, 10)).Render(title + "\n" + status)
}

// FormField is one text input of the run form, already rendered by its
// bubbles textinput.
type FormField struct {
	Label   string
	Input   string
	Focused bool
}

// FormState is the run form.
type FormState struct {
	Fields        []FormField
	DryRun        bool
	DryRunFocused bool
	// Disabled is set while a run is in flight.
	Disabled bool
	Error    string
}

// RenderForm renders the run form panel.
func RenderForm(s FormState, width int, focused bool) string {
	var b strings.Builder
	for _, f := range s.Fields {
		label := styles.FormLabel
		if f.Focused {
			label = styles.FormLabelFocused
		}
		b.WriteString(label.Render(f.Label))
		b.WriteString(f.Input)
		b.WriteString("\n")
	}

	label := styles.FormLabel
	if s.DryRunFocused {
		label = styles.FormLabelFocused
	}
	box := "[ ]"
	if s.DryRun {
		box = "[x]"
	}
	b.WriteString(label.Render("Dry run"))
	b.WriteString(box)
	b.WriteString(styles.Muted.Render(" compute changes without publishing"))

	if s.Disabled {
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render("run in progress…"))
	}
	if s.Error != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorMsg.Render(s.Error))
	}
	return panel("Run workflow", b.String(), width, focused)
}

// RenderTimeline renders the step list. The detail of the most recent step
// signal is shown next to the active step.
func RenderTimeline(steps []dashboard.StepView, state timeline.State, width int) string {
	var b strings.Builder
	inner := max(width-4, 10)
	for i, step := range steps {
		class := string(step.Class)
		marker := lipgloss.NewStyle().Foreground(styles.StatusColor(class)).Render(styles.StatusIcon(class))
		title := step.Title
		if step.Class == timeline.ClassActive || step.Class == timeline.ClassError {
			title = lipgloss.NewStyle().Bold(true).Foreground(styles.StatusColor(class)).Render(title)
		}
		line := fmt.Sprintf("%s %d. %s", marker, step.Order+1, title)
		if step.Class == timeline.ClassActive && state.Detail != "" {
			line += styles.Muted.Render(" · " + state.Detail)
		}
		b.WriteString(util.TruncateANSI(line, inner))
		if i < len(steps)-1 {
			b.WriteString("\n")
		}
	}
	title := "Timeline"
	if state.Phase != timeline.PhaseIdle {
		title += " · " + string(state.Phase)
	}
	return panel(title, b.String(), width, false)
}

// RenderAgents renders one line pair per agent, in display order.
func RenderAgents(summaries agents.Summaries, width int) string {
	var b strings.Builder
	inner := max(width-4, 10)
	for i, id := range agents.Order {
		s, ok := summaries[id]
		if !ok {
			s = agents.Placeholder
		}
		delivered := s.Delivered
		switch {
		case strings.HasPrefix(delivered, "FAIL"):
			delivered = styles.Error.Render(delivered)
		case delivered == "PASS":
			delivered = styles.Secondary.Render(delivered)
		}
		b.WriteString(util.TruncateANSI(styles.Text.Bold(true).Render(id.Title())+styles.Muted.Render(" · "+s.LastAction), inner))
		b.WriteString("\n")
		b.WriteString(util.TruncateANSI("  "+delivered, inner))
		if i < len(agents.Order)-1 {
			b.WriteString("\n")
		}
	}
	return panel("Agents", b.String(), width, false)
}

// RenderResult renders the reconciled outcome.
func RenderResult(v outcome.View, width int) string {
	var b strings.Builder
	tone := string(v.Tone)
	badge := styles.StatusBadge.Background(styles.StatusColor(tone)).Render(styles.StatusIcon(tone) + " " + v.Label)
	b.WriteString(badge)
	if v.Message != "" {
		b.WriteString("\n")
		msg := v.Message
		if v.Tone == outcome.ToneError {
			msg = styles.Error.Render(msg)
		}
		b.WriteString(lipgloss.NewStyle().Width(max(width-4, 10)).Render(msg))
	}
	for _, f := range v.Fields {
		value := f.Value
		if f.Label == "Commit" {
			value = util.ShortSHA(value)
		}
		if f.Link {
			value = styles.Link.Render(value)
		}
		b.WriteString("\n")
		b.WriteString(styles.FieldLabel.Render(f.Label))
		b.WriteString(value)
	}
	return panel("Result", b.String(), width, false)
}

// HelpBarState selects the key bindings shown.
type HelpBarState struct {
	Running    bool
	FilterMode bool
	// CanReset is set once a run settled.
	CanReset bool
}

// RenderHelp renders the help bar.
func RenderHelp(s HelpBarState, width int) string {
	type binding struct{ key, desc string }
	var bindings []binding
	switch {
	case s.FilterMode:
		bindings = []binding{{"type", "event glob"}, {"1-4", "levels"}, {"ctrl+a", "all levels"}, {"ctrl+u", "clear"}, {"esc", "close"}}
	default:
		bindings = []binding{{"tab", "next field"}, {"space", "toggle dry run"}}
		if !s.Running {
			bindings = append(bindings, binding{"enter", "run"})
		}
		bindings = append(bindings, binding{"ctrl+t", "health"}, binding{"ctrl+f", "filter"}, binding{"pgup/pgdn", "scroll events"})
		if s.CanReset {
			bindings = append(bindings, binding{"ctrl+r", "reset"})
		}
		bindings = append(bindings, binding{"ctrl+c", "quit"})
	}

	parts := make([]string, 0, len(bindings))
	for _, bnd := range bindings {
		parts = append(parts, styles.HelpKey.Render("["+bnd.key+"]")+" "+bnd.desc)
	}
	return styles.HelpBar.Render(util.TruncateANSI(strings.Join(parts, "  "), max(width, 10)))
}
