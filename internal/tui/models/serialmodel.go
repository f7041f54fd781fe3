package models

import (
	"context"
	"sync"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/internal/tui/components"
)

// maxRawData bounds the history kept for redraws
const maxRawData = 5000

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

// ConnectionStatusMsg reports the outcome of a connect attempt
type ConnectionStatusMsg struct {
	Connected  bool
	Connection *serialdevice.Connection
	Error      error
}

// BitrateChangedMsg reports the outcome of a bitrate change
type BitrateChangedMsg struct {
	Bitrate int
	OK      bool
	Error   error
}

// SerialModel is the state shared by TUI commands driving a Controller
type SerialModel struct {
	dev  *serialdevice.Controller
	conn *serialdevice.Connection

	// State
	connected bool
	rawData   []components.DataReceivedMsg
	err       error
	ready     bool

	inputMode InputMode

	cancel context.CancelFunc
	ctx    context.Context
	mu     sync.RWMutex
}

func NewSerialModel(dev *serialdevice.Controller) *SerialModel {
	ctx, cancel := context.WithCancel(context.Background())

	return &SerialModel{
		dev:       dev,
		rawData:   make([]components.DataReceivedMsg, 0),
		inputMode: InputModeNormal,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *SerialModel) Controller() *serialdevice.Controller {
	return m.dev
}

// Connection returns the last connection reported by the controller
func (m *SerialModel) Connection() *serialdevice.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *SerialModel) SetConnection(conn *serialdevice.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = conn
	m.connected = conn != nil
}

// PortPath returns the connected port path or the pattern while connecting
func (m *SerialModel) PortPath() string {
	if conn := m.Connection(); conn != nil {
		return conn.Port.Path
	}
	return m.dev.PortPattern()
}

func (m *SerialModel) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *SerialModel) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *SerialModel) GetError() error {
	return m.err
}

func (m *SerialModel) SetError(err error) {
	m.err = err
}

func (m *SerialModel) IsReady() bool {
	return m.ready
}

func (m *SerialModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SerialModel) GetRawData() []components.DataReceivedMsg {
	return m.rawData
}

// AddRawData records msg, dropping the oldest entries past maxRawData
func (m *SerialModel) AddRawData(msg components.DataReceivedMsg) {
	m.rawData = append(m.rawData, msg)
	if over := len(m.rawData) - maxRawData; over > 0 {
		m.rawData = append(m.rawData[:0], m.rawData[over:]...)
	}
}

func (m *SerialModel) ClearData() {
	m.rawData = make([]components.DataReceivedMsg, 0)
}

func (m *SerialModel) GetInputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *SerialModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *SerialModel) IsInInsertMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode == InputModeInsert
}

func (m *SerialModel) GetContext() context.Context {
	return m.ctx
}

// Cleanup cancels pending work and closes the controller
func (m *SerialModel) Cleanup() {
	if m.cancel != nil {
		m.cancel()
	}
	_ = m.dev.Close(context.Background())
	m.SetConnection(nil)
}
