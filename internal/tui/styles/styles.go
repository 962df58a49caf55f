package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray
	BlueColor      = lipgloss.Color("#60A5FA") // Blue
	PinkColor      = lipgloss.Color("#F472B6") // Pink

	// Convenience styles for colors
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Panels
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 1)

	PanelFocused = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(PrimaryColor).
			Padding(0, 1)

	PanelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor)

	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	// Header
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(BorderColor)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Status badge, e.g. the run outcome label
	StatusBadge = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor).
			Padding(0, 1)

	// Form
	FormLabel = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(12)

	FormLabelFocused = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true).
				Width(12)

	// Result field values
	FieldLabel = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(10)

	Link = lipgloss.NewStyle().
		Foreground(BlueColor).
		Underline(true)

	// Error message
	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// Event log
	EventTime = lipgloss.NewStyle().
			Foreground(MutedColor)

	EventName = lipgloss.NewStyle().
			Foreground(BlueColor)

	EventFields = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(4)

	SearchInput = lipgloss.NewStyle().
			Foreground(TextColor)

	// Filter styles
	FilterCategoryEnabled = lipgloss.NewStyle().
				Foreground(SecondaryColor).
				Bold(true).
				MarginRight(2)

	FilterCategoryDisabled = lipgloss.NewStyle().
				Foreground(MutedColor).
				MarginRight(2)

	FilterCheckbox = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	FilterCheckboxEmpty = lipgloss.NewStyle().
				Foreground(MutedColor)
)

// StatusColor returns the color for a step class, outcome tone, stream
// status or event level.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "active", "running", "connecting":
		return WarningColor
	case "done", "open":
		return BlueColor
	case "success", "completed":
		return SecondaryColor
	case "dryrun":
		return PinkColor
	case "error", "failed":
		return ErrorColor
	case "warning", "warn":
		return WarningColor
	default:
		return MutedColor
	}
}

// StatusIcon returns an icon for a step class, outcome tone or stream
// status.
func StatusIcon(status string) string {
	switch status {
	case "pending", "idle":
		return "○"
	case "active", "running", "connecting":
		return "●"
	case "done", "success", "completed":
		return "✓"
	case "dryrun":
		return "◇"
	case "error", "failed":
		return "✗"
	case "open":
		return "◉"
	case "closed":
		return "◌"
	default:
		return "●"
	}
}

// LevelStyle returns the style used for an event level.
func LevelStyle(level string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StatusColor(level)).Bold(level == "error")
}
