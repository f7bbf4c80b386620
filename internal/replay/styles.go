// Package replay renders validation results and saved run traces for the
// terminal.
package replay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color scheme - each kind of record has a distinct, consistent color.
var (
	// Structural / metadata
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - labels

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")) // White - values

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - headers

	// Happenings - default/white
	flowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	// Actions - Blue
	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Trajectory violations - Magenta
	violationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	// Preferences - Cyan
	preferenceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	// Outcomes
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	// Timeline
	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(8).
			Align(lipgloss.Right)

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)

// StatusStyle returns the style for a verdict.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "valid":
		return successStyle
	case "invalid", "error":
		return errorStyle
	default:
		return warnStyle
	}
}
