package termios

import "time"

// WriteMode represents the write synchronization mode
type WriteMode int

const (
	WriteModeBuffered WriteMode = iota // Default: kernel buffers writes
	WriteModeSynced                    // O_SYNC: writes block until hardware transmission
)

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlRTSCTS
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// maxReadTimeout is the largest VTIME value (255 deciseconds)
const maxReadTimeout = 25500 * time.Millisecond

// Config holds the configuration for a serial port
type Config struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      Parity
	FlowControl FlowControl
	ReadTimeout time.Duration // VTIME, in 100ms steps
	WriteMode   WriteMode
	InitialRTS  *bool
	InitialDTR  *bool
	Exclusive   bool // TIOCEXCL so a second open of the same tty fails

	FlushOnOpen  bool // discard input queued before the open
	DrainOnClose bool // wait for pending output before closing
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns 9600 8N1 with a 100ms read timeout, short enough for
// the transport reader to notice Close promptly
func DefaultConfig() Config {
	return Config{
		BaudRate:    9600,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		FlowControl: FlowControlNone,
		ReadTimeout: 100 * time.Millisecond,
		WriteMode:   WriteModeBuffered,
		Exclusive:   true,
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if _, err := getBaudRate(rate); err != nil {
			return err
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		c.Parity = parity
		return nil
	}
}

// WithFlowControl sets the flow control mode
func WithFlowControl(fc FlowControl) Option {
	return func(c *Config) error {
		c.FlowControl = fc
		return nil
	}
}

// WithReadTimeout sets VTIME. The timeout must be a multiple of 100ms between
// 0 and 25.5s.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 || timeout > maxReadTimeout || timeout%(100*time.Millisecond) != 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithSyncWrite enables synchronous writes (O_SYNC) for guaranteed transmission
func WithSyncWrite() Option {
	return func(c *Config) error {
		c.WriteMode = WriteModeSynced
		return nil
	}
}

// WithInitialRTS sets RTS to state right after opening
func WithInitialRTS(state bool) Option {
	return func(c *Config) error {
		c.InitialRTS = &state
		return nil
	}
}

// WithInitialDTR sets DTR to state right after opening. Many USB adapters
// power or reset the attached device through DTR.
func WithInitialDTR(state bool) Option {
	return func(c *Config) error {
		c.InitialDTR = &state
		return nil
	}
}

// WithExclusive controls TIOCEXCL on open
func WithExclusive(exclusive bool) Option {
	return func(c *Config) error {
		c.Exclusive = exclusive
		return nil
	}
}

// WithFlushOnOpen discards bytes the driver buffered before the port was
// opened, so the first read only sees traffic from this session
func WithFlushOnOpen() Option {
	return func(c *Config) error {
		c.FlushOnOpen = true
		return nil
	}
}

// WithDrainOnClose makes Close wait until written data has left the UART.
// With hardware flow control and a stalled peer Close can then block.
func WithDrainOnClose() Option {
	return func(c *Config) error {
		c.DrainOnClose = true
		return nil
	}
}
