package keys

import "github.com/charmbracelet/bubbles/key"

// MonitorKeys are the bindings of the monitor TUI. Letter keys only apply
// in normal mode; insert mode hands them to the input line.
type MonitorKeys struct {
	// mode and lifecycle
	Quit       key.Binding
	Help       key.Binding
	InsertMode key.Binding
	Escape     key.Binding

	// display
	Clear       key.Binding
	ToggleHex   key.Binding
	ToggleASCII key.Binding
	VisualMode  key.Binding
	Up          key.Binding
	Down        key.Binding
	GotoTop     key.Binding
	GotoBottom  key.Binding

	// sending
	Enter          key.Binding
	ToggleSendMode key.Binding

	// controller
	BitrateUp   key.Binding
	BitrateDown key.Binding
	EmitTrace   key.Binding
	Flush       key.Binding
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

func NewMonitorKeys() MonitorKeys {
	return MonitorKeys{
		Quit:       bind("q/ctrl+c", "quit", "q", "Q", "ctrl+c"),
		Help:       bind("?", "toggle help", "?"),
		InsertMode: bind("i", "insert mode", "i", "I"),
		Escape:     bind("esc", "normal mode", "esc"),

		Clear:       bind("c", "clear display", "c"),
		ToggleHex:   bind("h", "toggle hex", "h"),
		ToggleASCII: bind("a", "toggle ascii", "a"),
		VisualMode:  bind("v", "table view", "v"),
		Up:          bind("↑/k", "up", "up", "k"),
		Down:        bind("↓/j", "down", "down", "j"),
		GotoTop:     bind("g", "goto top", "g"),
		GotoBottom:  bind("G", "goto bottom", "G"),

		Enter:          bind("enter", "send message", "enter"),
		ToggleSendMode: bind("tab", "toggle send mode", "tab"),

		BitrateUp:   bind("+", "next bitrate", "+", "="),
		BitrateDown: bind("-", "previous bitrate", "-"),
		EmitTrace:   bind("t", "write trace to log", "t"),
		Flush:       bind("f", "flush packets", "f"),
	}
}

func (k MonitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.InsertMode, k.VisualMode, k.BitrateUp, k.BitrateDown, k.Quit}
}

func (k MonitorKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.InsertMode, k.VisualMode, k.Escape, k.Clear},
		{k.ToggleHex, k.ToggleASCII, k.EmitTrace, k.Flush},
		{k.GotoTop, k.GotoBottom, k.Up, k.Down},
		{k.BitrateUp, k.BitrateDown, k.Enter, k.Help, k.Quit},
	}
}
