package serialdevice

import (
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DefaultPortPattern matches USB serial adapters on macOS and Linux
const DefaultPortPattern = `^/dev/(cu\.usb.+|ttyUSB\d+|ttyACM\d+)$`

// Config holds the configuration for a Controller and its ConnectionManager
type Config struct {
	PortPattern    string
	Bitrate        int
	SendTimeout    time.Duration // passed to the transport on every open
	OpenTimeout    time.Duration // per-candidate deadline, 0 leaves it to the transport
	SettleDelay    time.Duration // wait between close and reopen on bitrate change
	TraceEnabled   bool
	TraceLineLimit int
	TraceDebounce  time.Duration
	Logger         zerolog.Logger
	Registerer     prometheus.Registerer
}

// Option is a functional option for configuring a Controller
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		PortPattern:    DefaultPortPattern,
		Bitrate:        9600,
		SendTimeout:    250 * time.Millisecond,
		SettleDelay:    500 * time.Millisecond,
		TraceEnabled:   true,
		TraceLineLimit: 400,
		TraceDebounce:  time.Second,
		Logger:         zerolog.Nop(),
	}
}

func buildConfig(opts []Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// WithPortPattern sets the regular expression candidate port paths must match
func WithPortPattern(pattern string) Option {
	return func(c *Config) error {
		if _, err := compilePattern(pattern); err != nil {
			return err
		}
		c.PortPattern = pattern
		return nil
	}
}

// WithBitrate sets the bitrate used when opening ports
func WithBitrate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidBaudRate
		}
		c.Bitrate = rate
		return nil
	}
}

// WithSendTimeout sets the send timeout handed to the transport on open
func WithSendTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.SendTimeout = timeout
		return nil
	}
}

// WithOpenTimeout bounds each candidate open attempt. Zero disables the deadline.
func WithOpenTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.OpenTimeout = timeout
		return nil
	}
}

// WithSettleDelay sets the delay between closing and reopening on a bitrate change
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Config) error {
		if delay < 0 {
			return ErrInvalidConfig
		}
		c.SettleDelay = delay
		return nil
	}
}

// WithTrace enables or disables the hex trace log
func WithTrace(enabled bool) Option {
	return func(c *Config) error {
		c.TraceEnabled = enabled
		return nil
	}
}

// WithTraceLineLimit sets the maximum number of lines the trace log keeps
func WithTraceLineLimit(lines int) Option {
	return func(c *Config) error {
		if lines <= 0 {
			return ErrInvalidConfig
		}
		c.TraceLineLimit = lines
		return nil
	}
}

// WithTraceDebounce sets the coalescing window for trace flushes
func WithTraceDebounce(window time.Duration) Option {
	return func(c *Config) error {
		if window < 0 {
			return ErrInvalidConfig
		}
		c.TraceDebounce = window
		return nil
	}
}

// WithLogger sets the structured logger. The trace sink derives from it.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithMetrics registers Prometheus collectors on the given registerer
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) error {
		c.Registerer = reg
		return nil
	}
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ErrInvalidPattern
	}
	return re, nil
}
