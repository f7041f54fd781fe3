package components

import (
	"strings"

	"github.com/allbin/serialdevice/internal/tui/colors"
	"github.com/allbin/serialdevice/internal/tui/styles"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const historyLimit = 100

type SendingMode int

const (
	SendingModeASCII SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "ASCII"
}

func (s SendingMode) prompt() (string, lipgloss.Color) {
	if s == SendingModeHex {
		return "#", colors.Yellow
	}
	return ">", colors.Green
}

// Input is the single-line send box of the monitor. Submitted lines are
// remembered so they can be recalled with the arrow keys.
type Input struct {
	textInput textinput.Model
	mode      SendingMode
	width     int

	history []string
	cursor  int    // index into history, -1 when editing a fresh line
	draft   string // line being edited before history was entered
}

// NewInput creates an input line starting in mode
func NewInput(mode SendingMode) *Input {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Prompt = ""

	i := &Input{textInput: ti, mode: mode, cursor: -1}
	i.textInput.Placeholder = i.placeholder()
	return i
}

func (i *Input) placeholder() string {
	if i.mode == SendingModeHex {
		return "Enter hex (e.g. 48656C6C6F or 48 65 6C 6C 6F)..."
	}
	return "Type message and press Enter to send..."
}

// SetWidth sizes the box to the terminal; border, padding and the prompt
// take six columns.
func (i *Input) SetWidth(width int) {
	i.width = width
	i.textInput.Width = max(width-6, 20)
}

func (i *Input) Focus() { i.textInput.Focus() }
func (i *Input) Blur()  { i.textInput.Blur() }

func (i *Input) Value() string         { return i.textInput.Value() }
func (i *Input) SetValue(value string) { i.textInput.SetValue(value) }

func (i *Input) GetSendingMode() SendingMode { return i.mode }

func (i *Input) ToggleSendingMode() {
	i.mode = 1 - i.mode
	i.textInput.Placeholder = i.placeholder()
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

// View renders the box. Outside insert mode it shows a hint instead of
// the text field.
func (i *Input) View(insert bool) string {
	symbol, color := i.mode.prompt()
	prompt := lipgloss.NewStyle().Foreground(color).Bold(true).Render(symbol)

	body := lipgloss.NewStyle().Foreground(colors.Overlay0).Render("Press 'i' to enter insert mode")
	if insert {
		body = i.textInput.View()
	}

	style := styles.InputStyle.Width(max(i.width-4, 10)).AlignHorizontal(lipgloss.Left)
	if insert {
		style = style.BorderForeground(colors.Green)
	}
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", body))
}

// AddToHistory records a submitted line, skipping blanks and repeats of
// the previous entry.
func (i *Input) AddToHistory(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if n := len(i.history); n == 0 || i.history[n-1] != line {
		i.history = append(i.history, line)
		if len(i.history) > historyLimit {
			i.history = i.history[len(i.history)-historyLimit:]
		}
	}
	i.cursor = -1
	i.draft = ""
}

func (i *Input) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}
	switch {
	case i.cursor == -1:
		i.draft = i.textInput.Value()
		i.cursor = len(i.history) - 1
	case i.cursor > 0:
		i.cursor--
	}
	i.textInput.SetValue(i.history[i.cursor])
}

func (i *Input) NavigateHistoryDown() {
	if i.cursor == -1 {
		return
	}
	if i.cursor < len(i.history)-1 {
		i.cursor++
		i.textInput.SetValue(i.history[i.cursor])
		return
	}
	i.cursor = -1
	i.textInput.SetValue(i.draft)
	i.draft = ""
}
