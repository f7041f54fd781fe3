package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Terminal is a scrolling log of formatted traffic lines
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	data      []string
	maxLines  int
}

func NewTerminal(width, height, maxLines int) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(true, true),
		data:      make([]string, 0),
		maxLines:  maxLines,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) Width() int {
	return t.viewport.Width
}

func (t *Terminal) AddMessage(msgs ...DataReceivedMsg) {
	for _, msg := range msgs {
		t.data = append(t.data, t.formatter.FormatMessage(msg))
	}
	if t.maxLines > 0 && len(t.data) > t.maxLines {
		t.data = t.data[len(t.data)-t.maxLines:]
	}
	t.refresh()
}

func (t *Terminal) RefreshDisplayWithRawData(rawData []DataReceivedMsg) {
	if t.maxLines > 0 && len(rawData) > t.maxLines {
		rawData = rawData[len(rawData)-t.maxLines:]
	}
	t.data = t.formatter.FormatMessages(rawData)
	t.refresh()
}

// refresh redraws and scrolls to the latest line
func (t *Terminal) refresh() {
	t.viewport.SetContent(strings.Join(t.data, "\n"))
	t.viewport.GotoBottom()
}

func (t *Terminal) Clear() {
	t.data = t.data[:0]
	t.viewport.SetContent("")
}

func (t *Terminal) ToggleHex() {
	t.formatter.ToggleHex()
}

func (t *Terminal) ToggleASCII() {
	t.formatter.ToggleASCII()
}

func (t *Terminal) GetDisplayMode() DisplayMode {
	return t.formatter.GetDisplayMode()
}

// Update only forwards window size messages so key bindings stay ours
func (t *Terminal) Update(msg tea.Msg) tea.Cmd {
	if _, ok := msg.(tea.WindowSizeMsg); !ok {
		return nil
	}
	var cmd tea.Cmd
	t.viewport, cmd = t.viewport.Update(msg)
	return cmd
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
