package tui

import "github.com/charmbracelet/lipgloss"

const (
	primaryColor   = "#7C3AED" // Purple
	secondaryColor = "#10B981" // Green
	warningColor   = "#F59E0B" // Amber
	errorColor     = "#EF4444" // Red
	dimColor       = "#6B7280" // Gray
)

var (
	// BoxStyle provides a rounded border box with primary color.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(primaryColor)).
			Padding(1, 2)

	// TitleStyle renders titles in primary color with bold.
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// SelectedStyle highlights the chair.
	SelectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(secondaryColor))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(warningColor))

	// HeaderStyle renders table headers in CLI listings.
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true).
			PaddingRight(2)

	// CellStyle pads table cells in CLI listings.
	CellStyle = lipgloss.NewStyle().PaddingRight(2)

	ProgressFullStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(secondaryColor))

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(dimColor))
)

// Member status icons (pre-rendered strings).
var (
	MemberDone     = SuccessStyle.Render("✓")
	MemberThinking = WarningStyle.Render("▸")
	MemberWaiting  = DimStyle.Render("○")
	MemberFailed   = ErrorStyle.Render("✗")
)

// StatusStyle picks the style for a session status label.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return SuccessStyle
	case "failed":
		return ErrorStyle
	case "running", "paused":
		return WarningStyle
	default:
		return DimStyle
	}
}
