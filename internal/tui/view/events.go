package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Iron-Ham/prflow/internal/runevent"
	"github.com/Iron-Ham/prflow/internal/tui/styles"
	"github.com/Iron-Ham/prflow/internal/util"
)

// EventLines renders events oldest first, one line each plus an optional
// line of sorted key=value fields.
func EventLines(events []runevent.RuntimeEvent, showFields bool, width int) string {
	if len(events) == 0 {
		return styles.Muted.Render("No events yet.")
	}
	inner := max(width, 20)
	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		level := strings.ToUpper(ev.Level)
		if level == "" {
			level = "INFO"
		}
		line := fmt.Sprintf("%s %s %s %s",
			styles.EventTime.Render(util.ClockTime(ev.Time())),
			styles.LevelStyle(strings.ToLower(ev.Level)).Render(fmt.Sprintf("%-5s", level)),
			styles.EventName.Render(ev.Event),
			ev.Message,
		)
		b.WriteString(util.TruncateANSI(line, inner))
		if showFields && len(ev.Fields) > 0 {
			b.WriteString("\n")
			b.WriteString(util.TruncateANSI(styles.EventFields.Render(FormatFields(ev.Fields)), inner))
		}
	}
	return b.String()
}

// FormatFields renders fields as space-separated key=value pairs sorted by
// key.
func FormatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, " ")
}

// EventsTitle is the event log panel title, e.g. "Events 12/40 · workflow.*".
func EventsTitle(shown, total, dropped int, pattern string) string {
	title := fmt.Sprintf("Events %d/%d", shown, total)
	if dropped > 0 {
		title += fmt.Sprintf(" (+%d older dropped)", dropped)
	}
	if pattern != "" && pattern != "*" && pattern != "**" {
		title += " · " + pattern
	}
	return title
}

// RenderEvents wraps the event viewport body in the event log panel.
func RenderEvents(title, body string, width int, focused bool) string {
	return panel(title, body, width, focused)
}
