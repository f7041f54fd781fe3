/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/allbin/serialdevice/internal/tui/components"
	"github.com/allbin/serialdevice/internal/tui/keys"
	"github.com/allbin/serialdevice/internal/tui/models"
	"github.com/allbin/serialdevice/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch packets from the first matching port in a TUI",
	Long: `Connect to the first port matching the pattern and show extracted packets
in real time.

Features include:
- Packets split by the configured framing (--framing none shows raw chunks)
- Hex and ASCII display, scrolling log or table view
- Sending ASCII or hex from the input line (press i)
- Changing bitrate on the fly with + and -
- Writing the hex trace to the log file with t

Log output goes to --log-file while the TUI is running.

Example usage:
  serialdevice monitor
  serialdevice monitor --framing stx --bitrate 115200
  serialdevice monitor --framing fixed --frame-size 16 --metrics-listen :9100`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath, _ := cmd.Flags().GetString("log-file")
		hexInput, _ := cmd.Flags().GetBool("hex")
		poll, _ := cmd.Flags().GetDuration("poll")
		return runMonitorTUI(logPath, hexInput, poll)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().String("log-file", "serialdevice-monitor.log", "File receiving log output while the TUI runs")
	monitorCmd.Flags().BoolP("hex", "x", false, "Start the input line in hex mode")
	monitorCmd.Flags().Duration("poll", 50*time.Millisecond, "Display refresh interval")
}

// standardBitrates are the steps taken by the bitrate keys
var standardBitrates = []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// nextBitrate returns the closest standard rate above (dir > 0) or below
// current, or 0 when there is none.
func nextBitrate(current, dir int) int {
	if dir > 0 {
		for _, r := range standardBitrates {
			if r > current {
				return r
			}
		}
		return 0
	}
	for i := len(standardBitrates) - 1; i >= 0; i-- {
		if standardBitrates[i] < current {
			return standardBitrates[i]
		}
	}
	return 0
}

type pollMsg time.Time

type txResultMsg components.DataReceivedMsg

// monitorModel represents the Bubble Tea model for the monitor command
type monitorModel struct {
	*models.SerialModel
	terminal  *components.Terminal
	table     *components.TerminalTable
	tableView bool
	input     *components.Input
	statusBar *components.StatusBar
	help      help.Model
	keys      keys.MonitorKeys
	framed    bool
	poll      time.Duration
	logPath   string
}

func runMonitorTUI(logPath string, hexInput bool, poll time.Duration) error {
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	log.Logger = zerolog.New(f).With().Timestamp().Logger()

	dev, err := newController(cfg)
	if err != nil {
		return err
	}
	extractor, err := cfg.Extractor()
	if err != nil {
		return err
	}

	mode := components.SendingModeASCII
	if hexInput {
		mode = components.SendingModeHex
	}

	m := &monitorModel{
		SerialModel: models.NewSerialModel(dev),
		terminal:    components.NewTerminal(80, 20, 2000),
		table:       components.NewTerminalTable(80, 20),
		input:       components.NewInput(mode),
		statusBar:   components.NewStatusBar(dev.PortPattern()),
		help:        help.New(),
		keys:        keys.NewMonitorKeys(),
		framed:      extractor != nil,
		poll:        poll,
		logPath:     logPath,
	}
	m.statusBar.SetConnecting()
	m.statusBar.Info().Backend = cfg.Backend
	m.statusBar.Info().Framing = cfg.Framing

	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		conn, err := dev.Connect(m.GetContext(), extractor)
		p.Send(models.ConnectionStatusMsg{Connected: err == nil, Connection: conn, Error: err})
	}()

	_, err = p.Run()
	m.Cleanup()
	return err
}

func (m *monitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m *monitorModel) tick() tea.Cmd {
	return tea.Tick(m.poll, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

// addMessages records msgs and appends them to the active view
func (m *monitorModel) addMessages(msgs ...components.DataReceivedMsg) {
	if len(msgs) == 0 {
		return
	}
	for _, msg := range msgs {
		m.AddRawData(msg)
	}
	m.terminal.AddMessage(msgs...)
	if m.tableView {
		m.table.RefreshDisplayWithRawData(m.GetRawData())
	}
}

func (m *monitorModel) addEvent(format string, args ...any) {
	m.addMessages(components.DataReceivedMsg{
		Timestamp: time.Now(),
		Data:      []byte(fmt.Sprintf(format, args...)),
		IsEvent:   true,
	})
}

// drain moves queued packets, or raw buffered bytes without framing, to the display
func (m *monitorModel) drain() {
	dev := m.Controller()
	now := time.Now()

	if !m.framed {
		if dev.Buffered() == 0 {
			return
		}
		data, err := dev.ReadSerial(m.GetContext(), 4096, 0)
		if err == nil && len(data) > 0 {
			m.statusBar.Info().Packets++
			m.addMessages(components.DataReceivedMsg{Timestamp: now, Data: data})
		}
		return
	}

	var msgs []components.DataReceivedMsg
	for {
		pkt, ok := dev.NextPacket()
		if !ok {
			break
		}
		data, ok := pkt.([]byte)
		if !ok {
			data = []byte(fmt.Sprint(pkt))
		}
		msgs = append(msgs, components.DataReceivedMsg{Timestamp: now, Data: data})
	}
	m.statusBar.Info().Packets += len(msgs)
	m.addMessages(msgs...)
}

func (m *monitorModel) refreshInfo() {
	dev := m.Controller()
	info := m.statusBar.Info()
	info.Buffered = dev.Buffered()
	info.TraceLines = dev.Trace().Lines()
	if conn, ok := dev.Connection(); ok {
		info.Bitrate = conn.Bitrate
	}
}

func (m *monitorModel) send() tea.Cmd {
	value := m.input.Value()
	if value == "" {
		return nil
	}

	var data, display []byte
	switch m.input.GetSendingMode() {
	case components.SendingModeHex:
		parsed, err := parseHexString(value)
		if err != nil {
			m.addEvent("Invalid hex input: %v", err)
			return nil
		}
		data = []byte(parsed)
		display = data
	default:
		data = []byte(value + "\n")
		display = []byte(value)
	}

	m.input.AddToHistory(value)
	m.input.SetValue("")

	if !m.IsConnected() {
		m.addEvent("not connected")
		return nil
	}

	m.addMessages(components.DataReceivedMsg{
		Timestamp: time.Now(),
		Data:      display,
		IsTX:      true,
		Status:    components.StatusPending,
	})

	dev, ctx := m.Controller(), m.GetContext()
	return func() tea.Msg {
		status := components.StatusWritten
		if _, err := dev.WriteSerial(ctx, data); err != nil {
			status = components.StatusError
		}
		return txResultMsg{Timestamp: time.Now(), Data: display, IsTX: true, Status: status}
	}
}

func (m *monitorModel) changeBitrate(dir int) tea.Cmd {
	conn := m.Connection()
	if conn == nil {
		m.addEvent("not connected")
		return nil
	}
	rate := nextBitrate(m.statusBar.Info().Bitrate, dir)
	if rate == 0 {
		return nil
	}

	m.statusBar.SetReopening()
	m.SetConnected(false)
	m.addEvent("changing bitrate to %d", rate)

	dev, ctx := m.Controller(), m.GetContext()
	return func() tea.Msg {
		ok, err := dev.ChangeBitRate(ctx, rate)
		return models.BitrateChangedMsg{Bitrate: rate, OK: ok, Error: err}
	}
}

// cycleView goes log → table (follow) → table (visual) → log
func (m *monitorModel) cycleView() {
	switch {
	case !m.tableView:
		m.tableView = true
		m.table.SetViewMode(components.ViewModeFollow)
		m.table.RefreshDisplayWithRawData(m.GetRawData())
	case m.table.GetViewMode() == components.ViewModeFollow:
		m.table.SetViewMode(components.ViewModeVisual)
	default:
		m.table.SetViewMode(components.ViewModeFollow)
		m.tableView = false
	}
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// input box with border, status bar, content border
		height := msg.Height - 3 - 1 - 1
		m.terminal.SetSize(msg.Width, height)
		m.table.SetSize(msg.Width, height)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.help.Width = msg.Width
		m.SetReady(true)
		cmds = append(cmds, m.terminal.Update(msg))

	case pollMsg:
		m.drain()
		m.refreshInfo()
		cmds = append(cmds, m.tick())

	case models.ConnectionStatusMsg:
		if msg.Error != nil {
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
			m.addEvent("connect failed: %v", msg.Error)
			break
		}
		m.SetError(nil)
		m.SetConnection(msg.Connection)
		m.statusBar.SetConnected()
		m.statusBar.SetPortPath(msg.Connection.Port.Path)
		m.statusBar.Info().Bitrate = msg.Connection.Bitrate
		m.addEvent("connected to %s at %d baud", msg.Connection.Port.Path, msg.Connection.Bitrate)

	case models.BitrateChangedMsg:
		if msg.Error != nil || !msg.OK {
			m.SetConnection(nil)
			m.SetError(msg.Error)
			m.statusBar.SetDisconnected(msg.Error)
			m.addEvent("bitrate change to %d failed: %v", msg.Bitrate, msg.Error)
			break
		}
		if conn, ok := m.Controller().Connection(); ok {
			m.SetConnection(&conn)
		}
		m.statusBar.SetConnected()
		m.statusBar.Info().Bitrate = msg.Bitrate
		m.addEvent("reopened at %d baud", msg.Bitrate)

	case txResultMsg:
		m.addMessages(components.DataReceivedMsg(msg))

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.Enter):
				cmds = append(cmds, m.send())
				return m, tea.Batch(cmds...)
			case msg.Type == tea.KeyUp:
				m.input.NavigateHistoryUp()
				return m, tea.Batch(cmds...)
			case msg.Type == tea.KeyDown:
				m.input.NavigateHistoryDown()
				return m, tea.Batch(cmds...)
			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
				return m, tea.Batch(cmds...)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
			return m, tea.Batch(cmds...)
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.InsertMode):
			m.SetInputMode(models.InputModeInsert)
			m.input.Focus()

		case key.Matches(msg, m.keys.Clear):
			m.ClearData()
			m.terminal.Clear()
			m.table.Clear()

		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll

		case key.Matches(msg, m.keys.ToggleHex):
			m.terminal.ToggleHex()
			m.table.ToggleHex()
			m.terminal.RefreshDisplayWithRawData(m.GetRawData())

		case key.Matches(msg, m.keys.ToggleASCII):
			m.terminal.ToggleASCII()
			m.table.ToggleASCII()
			m.terminal.RefreshDisplayWithRawData(m.GetRawData())

		case key.Matches(msg, m.keys.ToggleSendMode):
			m.input.ToggleSendingMode()

		case key.Matches(msg, m.keys.VisualMode):
			m.cycleView()

		case key.Matches(msg, m.keys.GotoTop):
			if m.tableView {
				m.table.GotoTop()
			}

		case key.Matches(msg, m.keys.GotoBottom):
			if m.tableView {
				m.table.GotoBottom()
			}

		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			if m.tableView {
				cmds = append(cmds, m.table.Update(msg))
			}

		case key.Matches(msg, m.keys.BitrateUp):
			cmds = append(cmds, m.changeBitrate(1))

		case key.Matches(msg, m.keys.BitrateDown):
			cmds = append(cmds, m.changeBitrate(-1))

		case key.Matches(msg, m.keys.EmitTrace):
			lines := m.Controller().Trace().Lines()
			m.Controller().EmitLog(false)
			m.addEvent("trace (%d lines) written to %s", lines, m.logPath)

		case key.Matches(msg, m.keys.Flush):
			m.Controller().Flush()
			m.addEvent("packet queue flushed")
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *monitorModel) View() string {
	var content string
	switch {
	case !m.IsReady():
		content = styles.InfoStyle.Render("Initializing...")
	case m.tableView:
		content = m.table.View()
	default:
		content = m.terminal.View()
	}
	if err := m.GetError(); err != nil && !m.IsConnected() {
		content = lipgloss.JoinVertical(lipgloss.Left, styles.ErrorStyle.Render(err.Error()), content)
	}

	inputMode := m.GetInputMode().String()
	bottom := m.input.View(m.IsInInsertMode())
	if m.help.ShowAll {
		bottom = m.help.View(m.keys)
	}

	viewMode := ""
	if m.tableView {
		viewMode = "TABLE " + m.table.GetViewMode().String()
	}

	statusBar := m.statusBar.ComprehensiveStatusBar(
		inputMode,
		m.input.GetSendingMode().String(),
		viewMode,
		m.IsConnected(),
		time.Now().Format("15:04:05"),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		styles.ContentBorderStyle.Render(content),
		bottom,
		statusBar,
	)
}
