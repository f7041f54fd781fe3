package styles

import (
	"github.com/allbin/serialdevice/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// Shared monitor styles. Colour choices for individual rows live with the
// component that renders them.
var (
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	// ErrorStyle marks the last connect or reopen failure above the traffic view.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red).
			Padding(0, 1)

	InfoStyle = lipgloss.NewStyle().
			Foreground(colors.Mauve).
			Italic(true).
			Padding(0, 1)
)
