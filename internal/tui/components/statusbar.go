package components

import (
	"fmt"

	"github.com/allbin/serialdevice/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// ConnectionInfo is what the status bar shows about the open connection
type ConnectionInfo struct {
	Bitrate    int
	Backend    string
	Framing    string
	Packets    int
	Buffered   int
	TraceLines int
}

// Status bar states
const (
	stateInitializing = "Initializing..."
	stateConnecting   = "Connecting..."
	stateReopening    = "Reopening..."
)

type StatusBar struct {
	portPath       string
	status         string
	err            error
	width          int
	connectionInfo ConnectionInfo
}

func NewStatusBar(portPath string) *StatusBar {
	return &StatusBar{
		portPath: portPath,
		status:   stateInitializing,
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetPortPath(path string) {
	sb.portPath = path
}

func (sb *StatusBar) Info() *ConnectionInfo {
	return &sb.connectionInfo
}

func (sb *StatusBar) SetConnecting() {
	sb.status = stateConnecting
	sb.err = nil
}

func (sb *StatusBar) SetReopening() {
	sb.status = stateReopening
	sb.err = nil
}

func (sb *StatusBar) SetConnected() {
	sb.status = "Connected"
	sb.err = nil
}

func (sb *StatusBar) SetDisconnected(err error) {
	if err != nil {
		sb.status = fmt.Sprintf("Connection failed: %v", err)
		sb.err = err
	} else {
		sb.status = "Disconnected"
		sb.err = nil
	}
}

// Status returns the current status text
func (sb *StatusBar) Status() string {
	return sb.status
}

// ComprehensiveStatusBar renders mode, port, connection indicator,
// connection details and the clock on one line.
func (sb *StatusBar) ComprehensiveStatusBar(inputMode, sendingMode, viewMode string, connected bool, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	modeBg := colors.Blue
	if inputMode == "INSERT" {
		modeBg = colors.Green
	}
	mode := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(modeBg).
		Bold(true).
		Padding(0, 1).
		Render(inputMode)

	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portPath)

	var connIndicator string
	var connStyle lipgloss.Style
	switch {
	case sb.err != nil:
		connStyle = lipgloss.NewStyle().Foreground(colors.Red)
		connIndicator = "✗"
	case connected:
		connStyle = lipgloss.NewStyle().Foreground(colors.Green)
		connIndicator = "●"
	case sb.status == stateConnecting || sb.status == stateReopening:
		connStyle = lipgloss.NewStyle().Foreground(colors.Yellow)
		connIndicator = "○"
	default:
		connStyle = lipgloss.NewStyle().Foreground(colors.Red)
		connIndicator = "○"
	}
	connectionIndicator := connStyle.Render(connIndicator)

	info := sb.connectionInfo
	connInfo := "⚡ serial"
	if info.Bitrate > 0 {
		connInfo = fmt.Sprintf("⚡ %d baud %s %s  pkt:%d buf:%d",
			info.Bitrate, info.Backend, info.Framing, info.Packets, info.Buffered)
		if info.TraceLines > 0 {
			connInfo += fmt.Sprintf(" trace:%d", info.TraceLines)
		}
	}
	connectionDetails := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(connInfo)

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{mode, port, connectionIndicator}
	if sb.status == stateReopening {
		left = append(left, lipgloss.NewStyle().Foreground(colors.Yellow).Padding(0, 1).Render(sb.status))
	}
	if inputMode == "INSERT" {
		left = append(left, lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	} else if viewMode != "" {
		left = append(left, lipgloss.NewStyle().Foreground(colors.Lavender).Padding(0, 1).Render(viewMode))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, connectionDetails, divider, clock)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
