package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/serialdevice/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// TX statuses
const (
	StatusPending = "PENDING"
	StatusWritten = "WRITTEN"
	StatusError   = "ERROR"
)

// DataReceivedMsg is one line of traffic: a received packet or chunk, a
// transmitted message, or a controller event such as a bitrate change.
type DataReceivedMsg struct {
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	IsEvent   bool
	Status    string // TX only
}

type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:   showHex,
			ShowASCII: showASCII,
		},
	}
}

func (df *DataFormatter) SetDisplayMode(showHex, showASCII bool) {
	df.mode.ShowHex = showHex
	df.mode.ShowASCII = showASCII
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

// HexString renders data as space separated upper case hex
func HexString(data []byte) string {
	return fmt.Sprintf("% X", data)
}

// PrintableASCII replaces bytes outside 32..126 with dots
func PrintableASCII(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func (df *DataFormatter) indicator(msg DataReceivedMsg) string {
	if msg.IsEvent {
		return lipgloss.NewStyle().
			Foreground(colors.Mauve).
			Bold(true).
			Render("● EV")
	}
	if !msg.IsTX {
		return lipgloss.NewStyle().
			Foreground(colors.Sky).
			Bold(true).
			Render("↙ RX")
	}

	var txColor lipgloss.Color
	var statusText string
	switch msg.Status {
	case StatusPending:
		txColor = colors.Yellow
		statusText = "TX ○"
	case StatusWritten:
		txColor = colors.Green
		statusText = "TX ✓"
	case StatusError:
		txColor = colors.Red
		statusText = "TX ✗"
	default:
		txColor = colors.Peach
		statusText = "TX"
	}
	return lipgloss.NewStyle().
		Foreground(txColor).
		Bold(true).
		Render("↗ " + statusText)
}

func (df *DataFormatter) FormatMessage(msg DataReceivedMsg) string {
	timestampStyled := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render(fmt.Sprintf("[%s]", msg.Timestamp.Format("15:04:05.000")))

	// events are plain text
	if msg.IsEvent {
		text := lipgloss.NewStyle().Foreground(colors.Subtext1).Render(string(msg.Data))
		return fmt.Sprintf("%s %s: %s", timestampStyled, df.indicator(msg), text)
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, "HEX: "+HexString(msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+PrintableASCII(msg.Data))
	}
	if !df.mode.ShowHex && !df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}

	return fmt.Sprintf("%s %s: %s", timestampStyled, df.indicator(msg), strings.Join(parts, "  "))
}

func (df *DataFormatter) FormatMessages(messages []DataReceivedMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}
