package filter

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/tui/styles"
)

// Category is a toggleable event level.
type Category struct {
	Key      string // event level (e.g., "error")
	Label    string
	Shortcut string
}

// Categories is the set of level categories, most severe first.
var Categories = []Category{
	{Key: "error", Label: "Errors", Shortcut: "1"},
	{Key: "warning", Label: "Warnings", Shortcut: "2"},
	{Key: "info", Label: "Info", Shortcut: "3"},
	{Key: "debug", Label: "Debug", Shortcut: "4"},
}

// Filter selects which runtime events the event log panel shows: by level
// category and by a glob over event names. Dots separate glob segments, so
// "workflow.*" matches workflow.step but not workflow.change_set.generated,
// while "workflow.**" matches both.
type Filter struct {
	categories map[string]bool
	pattern    string
	glob       glob.Glob
}

// New creates a Filter with every category enabled and no pattern.
func New() *Filter {
	f := &Filter{categories: make(map[string]bool)}
	for _, cat := range Categories {
		f.categories[cat.Key] = true
	}
	return f
}

// NewWithPattern creates a Filter restricted to event names matching pattern.
// It returns an error when the pattern does not compile.
func NewWithPattern(pattern string) (*Filter, error) {
	f := New()
	if err := f.SetPattern(pattern); err != nil {
		return nil, err
	}
	return f, nil
}

// Categories returns a copy of the current category states.
func (f *Filter) Categories() map[string]bool {
	result := make(map[string]bool, len(f.categories))
	for k, v := range f.categories {
		result[k] = v
	}
	return result
}

// IsCategoryEnabled returns whether a specific category is enabled.
func (f *Filter) IsCategoryEnabled(key string) bool {
	return f.categories[key]
}

// ToggleCategory toggles the enabled state of a category.
func (f *Filter) ToggleCategory(key string) {
	f.categories[key] = !f.categories[key]
}

// ToggleAll disables every category when all are enabled, and enables all
// otherwise.
func (f *Filter) ToggleAll() {
	allEnabled := f.AllEnabled()
	for k := range f.categories {
		f.categories[k] = !allEnabled
	}
}

// AllEnabled returns true if all categories are enabled.
func (f *Filter) AllEnabled() bool {
	for _, v := range f.categories {
		if !v {
			return false
		}
	}
	return true
}

// Pattern returns the event name glob. An empty pattern matches everything.
func (f *Filter) Pattern() string {
	return f.pattern
}

// SetPattern compiles and installs a new event name glob. On error the
// text is kept for further editing and the last valid glob stays active.
func (f *Filter) SetPattern(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	f.pattern = pattern
	if pattern == "" || pattern == "*" || pattern == "**" {
		f.glob = nil
		return nil
	}
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return fmt.Errorf("invalid event filter %q: %w", pattern, err)
	}
	f.glob = g
	return nil
}

// HasActiveFilter returns true if any event can be hidden.
func (f *Filter) HasActiveFilter() bool {
	return !f.AllEnabled() || f.glob != nil
}

// Match reports whether an event passes the filter. Levels outside the
// known categories are treated as info.
func (f *Filter) Match(ev runevent.RuntimeEvent) bool {
	if f.glob != nil && !f.glob.Match(ev.Event) {
		return false
	}
	return f.categories[levelKey(ev.Level)]
}

// Apply returns the events that pass the filter, preserving order.
func (f *Filter) Apply(events []runevent.RuntimeEvent) []runevent.RuntimeEvent {
	if !f.HasActiveFilter() {
		return events
	}
	out := make([]runevent.RuntimeEvent, 0, len(events))
	for _, ev := range events {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func levelKey(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error", "critical", "fatal":
		return "error"
	case "warn", "warning":
		return "warning"
	case "debug", "trace":
		return "debug"
	default:
		return "info"
	}
}

// InputResult captures the result of handling a key press in filter mode.
type InputResult struct {
	ExitMode bool
	// Err is set when the edited pattern does not compile yet.
	Err error
}

// HandleKey handles keyboard input when in filter mode. Digits toggle
// categories; letters and glob syntax edit the pattern.
func (f *Filter) HandleKey(msg tea.KeyMsg) InputResult {
	switch msg.String() {
	case "esc", "enter":
		return InputResult{ExitMode: true}
	case "1", "2", "3", "4":
		f.ToggleCategory(Categories[msg.String()[0]-'1'].Key)
		return InputResult{}
	case "ctrl+a":
		f.ToggleAll()
		return InputResult{}
	case "ctrl+u":
		_ = f.SetPattern("")
		return InputResult{}
	}

	switch msg.Type {
	case tea.KeyBackspace:
		if f.pattern == "" {
			return InputResult{}
		}
		return InputResult{Err: f.SetPattern(f.pattern[:len(f.pattern)-1])}
	case tea.KeyRunes:
		next := f.pattern
		if next == "*" || next == "**" {
			next = ""
		}
		return InputResult{Err: f.SetPattern(next + string(msg.Runes))}
	}
	return InputResult{}
}

// RenderPanel renders the filter configuration panel.
func RenderPanel(f *Filter, width int, patternErr error) string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Event Filters"))
	b.WriteString("\n\n")

	for _, cat := range Categories {
		var checkbox string
		var labelStyle lipgloss.Style
		if f.IsCategoryEnabled(cat.Key) {
			checkbox = styles.FilterCheckbox.Render("[✓]")
			labelStyle = styles.FilterCategoryEnabled
		} else {
			checkbox = styles.FilterCheckboxEmpty.Render("[ ]")
			labelStyle = styles.FilterCategoryDisabled
		}
		fmt.Fprintf(&b, "%s %s %s\n", checkbox, labelStyle.Render(cat.Label), styles.Muted.Render("("+cat.Shortcut+")"))
	}

	b.WriteString("\n")
	b.WriteString(styles.Secondary.Render("Event name:"))
	b.WriteString(" ")
	if p := f.Pattern(); p != "" {
		b.WriteString(styles.SearchInput.Render(p))
	} else {
		b.WriteString(styles.Muted.Render("(type a glob, e.g. workflow.*)"))
	}
	if patternErr != nil {
		b.WriteString("\n")
		b.WriteString(styles.ErrorMsg.Render(patternErr.Error()))
	}
	b.WriteString("\n\n")
	b.WriteString(styles.Muted.Render("[ctrl+a] toggle all  [ctrl+u] clear pattern  [esc] close"))

	return styles.ContentBox.Width(max(width-4, 20)).Render(b.String())
}
