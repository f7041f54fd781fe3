package components

import (
	"fmt"

	"github.com/allbin/serialdevice/internal/tui/colors"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type ViewMode int

const (
	ViewModeFollow ViewMode = iota
	ViewModeVisual
)

func (v ViewMode) String() string {
	if v == ViewModeVisual {
		return "VISUAL"
	}
	return "FOLLOW"
}

// TerminalTable shows traffic one row per message. In visual mode the cursor
// can be moved to inspect older rows; in follow mode it tracks the newest.
type TerminalTable struct {
	table     table.Model
	formatter *DataFormatter
	viewMode  ViewMode
	rawData   []DataReceivedMsg
}

const (
	timeWidth  = 14
	dirWidth   = 3
	bytesWidth = 6
	minWidth   = 80
)

func NewTerminalTable(width, height int) *TerminalTable {
	width = max(width, minWidth)
	height = max(height, 5)

	t := table.New(
		table.WithFocused(false),
		table.WithHeight(height),
		table.WithWidth(width),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colors.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(colors.Text)
	s.Selected = s.Selected.
		Foreground(colors.Text).
		Background(colors.Surface1).
		Bold(false)
	t.SetStyles(s)

	tt := &TerminalTable{
		table:     t,
		formatter: NewDataFormatter(true, true),
		viewMode:  ViewModeFollow,
	}
	tt.updateColumns(width)
	return tt
}

func (tt *TerminalTable) SetSize(width, height int) {
	tt.updateColumns(width)
	tt.table.SetHeight(height)
	tt.table.SetWidth(width)
	tt.table.UpdateViewport()
}

// updateColumns lays out the data columns for the current display mode,
// giving hex 70% of the free width when both hex and ASCII are shown.
func (tt *TerminalTable) updateColumns(width int) {
	mode := tt.formatter.GetDisplayMode()
	remaining := max(max(width, minWidth)-(timeWidth+dirWidth+bytesWidth+10), 20)

	columns := []table.Column{
		{Title: "Time", Width: timeWidth},
		{Title: "↕", Width: dirWidth},
	}
	switch {
	case mode.ShowHex && mode.ShowASCII:
		columns = append(columns,
			table.Column{Title: "Hex", Width: max(remaining*7/10, 20)},
			table.Column{Title: "ASCII", Width: max(remaining*3/10, 10)},
		)
	case mode.ShowHex:
		columns = append(columns, table.Column{Title: "Hex", Width: max(remaining, 30)})
	case mode.ShowASCII:
		columns = append(columns, table.Column{Title: "ASCII", Width: remaining})
	default:
		columns = append(columns, table.Column{Title: "Data", Width: max(remaining, 25)})
	}
	columns = append(columns, table.Column{Title: "Bytes", Width: bytesWidth})

	// rows must match the new column count before the columns are swapped
	tt.table.SetRows(nil)
	tt.table.SetColumns(columns)
	tt.refreshTable()
}

func (tt *TerminalTable) RefreshDisplayWithRawData(rawData []DataReceivedMsg) {
	tt.rawData = append(tt.rawData[:0], rawData...)
	tt.refreshTable()
}

func (tt *TerminalTable) refreshTable() {
	rows := make([]table.Row, len(tt.rawData))
	for i, msg := range tt.rawData {
		rows[i] = tt.row(msg)
	}
	tt.table.SetRows(rows)
	if tt.viewMode == ViewModeFollow {
		tt.table.GotoBottom()
	}
	tt.table.UpdateViewport()
}

func (tt *TerminalTable) row(msg DataReceivedMsg) table.Row {
	timestamp := msg.Timestamp.Format("15:04:05.000")

	direction := "↙"
	switch {
	case msg.IsEvent:
		direction = "●"
	case msg.IsTX:
		direction = "↗"
	}
	bytesStr := fmt.Sprintf("%d", len(msg.Data))

	mode := tt.formatter.GetDisplayMode()
	if msg.IsEvent {
		text := string(msg.Data)
		if mode.ShowHex && mode.ShowASCII {
			return table.Row{timestamp, direction, text, "", ""}
		}
		return table.Row{timestamp, direction, text, ""}
	}

	switch {
	case mode.ShowHex && mode.ShowASCII:
		return table.Row{timestamp, direction, HexString(msg.Data), PrintableASCII(msg.Data), bytesStr}
	case mode.ShowHex:
		return table.Row{timestamp, direction, HexString(msg.Data), bytesStr}
	case mode.ShowASCII:
		return table.Row{timestamp, direction, PrintableASCII(msg.Data), bytesStr}
	default:
		return table.Row{timestamp, direction, fmt.Sprintf("%d bytes", len(msg.Data)), bytesStr}
	}
}

func (tt *TerminalTable) Clear() {
	tt.rawData = tt.rawData[:0]
	tt.table.SetRows(nil)
}

func (tt *TerminalTable) ToggleHex() {
	tt.formatter.ToggleHex()
	tt.updateColumns(tt.table.Width())
}

func (tt *TerminalTable) ToggleASCII() {
	tt.formatter.ToggleASCII()
	tt.updateColumns(tt.table.Width())
}

func (tt *TerminalTable) GetViewMode() ViewMode {
	return tt.viewMode
}

func (tt *TerminalTable) SetViewMode(mode ViewMode) {
	tt.viewMode = mode
	if mode == ViewModeFollow {
		tt.table.Blur()
		tt.table.GotoBottom()
	} else {
		tt.table.Focus()
	}
	tt.table.UpdateViewport()
}

func (tt *TerminalTable) GotoTop() {
	tt.table.GotoTop()
}

func (tt *TerminalTable) GotoBottom() {
	tt.table.GotoBottom()
}

// Update forwards navigation keys to the table in visual mode only
func (tt *TerminalTable) Update(msg tea.Msg) tea.Cmd {
	if tt.viewMode != ViewModeVisual {
		return nil
	}
	var cmd tea.Cmd
	tt.table, cmd = tt.table.Update(msg)
	return cmd
}

func (tt *TerminalTable) View() string {
	return tt.table.View()
}
