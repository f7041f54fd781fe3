// Package config loads CLI configuration from a YAML file, SERIALDEVICE_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/extract"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backends
const (
	BackendTermios = "termios"
	BackendBugst   = "bugst"
)

// Framings understood by Extractor
const (
	FramingNone   = "none"
	FramingLines  = "lines"
	FramingSTX    = "stx"
	FramingLength = "length"
	FramingFixed  = "fixed"
)

// Config is the root CLI configuration
type Config struct {
	PortPattern string        `mapstructure:"port_pattern"`
	Bitrate     int           `mapstructure:"bitrate"`
	Backend     string        `mapstructure:"backend"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// Framing selects the packet extractor for monitor
	Framing   string `mapstructure:"framing"`
	FrameSize int    `mapstructure:"frame_size"`

	Serial  SerialConfig  `mapstructure:"serial"`
	Log     LogConfig     `mapstructure:"log"`
	Trace   TraceConfig   `mapstructure:"trace"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// maxReadTimeout is the longest read wait termios can express (VTIME 255)
const maxReadTimeout = 25500 * time.Millisecond

// Parity and flow control names
const (
	ParityNone = "none"
	ParityOdd  = "odd"
	ParityEven = "even"

	FlowNone   = "none"
	FlowRTSCTS = "rtscts"
)

// SerialConfig is the line setup the backend applies to every open. DTR and
// RTS are left as the driver sets them unless configured.
type SerialConfig struct {
	DataBits     int    `mapstructure:"data_bits"`
	StopBits     int    `mapstructure:"stop_bits"`
	Parity       string `mapstructure:"parity"`
	FlowControl  string `mapstructure:"flow_control"`
	DTR          *bool  `mapstructure:"dtr"`
	RTS          *bool  `mapstructure:"rts"`
	Exclusive    bool   `mapstructure:"exclusive"`
	SyncWrite    bool   `mapstructure:"sync_write"`
	FlushOnOpen  bool   `mapstructure:"flush_on_open"`
	DrainOnClose bool   `mapstructure:"drain_on_close"`

	// ReadTimeout is how long one read waits for data; it also bounds how
	// quickly a closed port is noticed. termios needs a multiple of 100ms.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// LogConfig defines logger settings
type LogConfig struct {
	// Level: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// TraceConfig controls the diagnostic trace log
type TraceConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	LineLimit int           `mapstructure:"line_limit"`
	Debounce  time.Duration `mapstructure:"debounce"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Default returns a Config populated from the library defaults
func Default() *Config {
	lib := serialdevice.DefaultConfig()
	return &Config{
		PortPattern: lib.PortPattern,
		Bitrate:     lib.Bitrate,
		Backend:     BackendTermios,
		SendTimeout: lib.SendTimeout,
		OpenTimeout: lib.OpenTimeout,
		SettleDelay: lib.SettleDelay,
		Framing:     FramingLines,
		FrameSize:   0,
		Serial: SerialConfig{
			DataBits:    8,
			StopBits:    1,
			Parity:      ParityNone,
			FlowControl: FlowNone,
			Exclusive:   true,
			ReadTimeout: 100 * time.Millisecond,
		},
		Log: LogConfig{Level: "info"},
		Trace: TraceConfig{
			Enabled:   lib.TraceEnabled,
			LineLimit: lib.TraceLineLimit,
			Debounce:  lib.TraceDebounce,
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise it searches
// the working directory and the user config directory for serialdevice.yaml.
// Environment variables use the prefix SERIALDEVICE with `.` replaced by `_`,
// e.g. SERIALDEVICE_LOG_LEVEL=debug. Flags in fs that were set on the
// command line take precedence over both.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SERIALDEVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("port_pattern", cfg.PortPattern)
	v.SetDefault("bitrate", cfg.Bitrate)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("send_timeout", cfg.SendTimeout)
	v.SetDefault("open_timeout", cfg.OpenTimeout)
	v.SetDefault("settle_delay", cfg.SettleDelay)
	v.SetDefault("framing", cfg.Framing)
	v.SetDefault("frame_size", cfg.FrameSize)
	v.SetDefault("serial.data_bits", cfg.Serial.DataBits)
	v.SetDefault("serial.stop_bits", cfg.Serial.StopBits)
	v.SetDefault("serial.parity", cfg.Serial.Parity)
	v.SetDefault("serial.flow_control", cfg.Serial.FlowControl)
	v.SetDefault("serial.exclusive", cfg.Serial.Exclusive)
	v.SetDefault("serial.sync_write", cfg.Serial.SyncWrite)
	v.SetDefault("serial.flush_on_open", cfg.Serial.FlushOnOpen)
	v.SetDefault("serial.drain_on_close", cfg.Serial.DrainOnClose)
	v.SetDefault("serial.read_timeout", cfg.Serial.ReadTimeout)
	// no default: unset means leave the line alone
	for _, key := range []string{"serial.dtr", "serial.rts"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("trace.enabled", cfg.Trace.Enabled)
	v.SetDefault("trace.line_limit", cfg.Trace.LineLimit)
	v.SetDefault("trace.debounce", cfg.Trace.Debounce)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)

	if fs != nil {
		for key, flag := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("serialdevice")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "serialdevice"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flagKeys maps config keys to the persistent flag names the CLI registers
var flagKeys = map[string]string{
	"port_pattern":   "pattern",
	"bitrate":        "bitrate",
	"backend":        "backend",
	"log.level":      "log-level",
	"trace.enabled":  "trace",
	"framing":        "framing",
	"frame_size":     "frame-size",
	"metrics.listen": "metrics-listen",
}

// Validate checks values the library options would not catch
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendTermios, BackendBugst:
	default:
		return fmt.Errorf("%w: unknown backend %q", serialdevice.ErrInvalidConfig, c.Backend)
	}
	if _, err := c.Extractor(); err != nil {
		return err
	}
	return c.Serial.validate(c.Backend)
}

func (s SerialConfig) validate(backend string) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: serial.%s", serialdevice.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return invalid("data_bits %d, want 5-8", s.DataBits)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return invalid("stop_bits %d, want 1 or 2", s.StopBits)
	}
	switch s.Parity {
	case ParityNone, ParityOdd, ParityEven:
	default:
		return invalid("parity %q", s.Parity)
	}
	switch s.FlowControl {
	case FlowNone, FlowRTSCTS:
	default:
		return invalid("flow_control %q", s.FlowControl)
	}
	if s.ReadTimeout <= 0 || s.ReadTimeout > maxReadTimeout {
		return invalid("read_timeout %s, want 0-%s", s.ReadTimeout, maxReadTimeout)
	}
	if backend == BackendTermios && s.ReadTimeout%(100*time.Millisecond) != 0 {
		return invalid("read_timeout %s is not a multiple of 100ms", s.ReadTimeout)
	}

	// go.bug.st/serial always claims the tty and has no flow control or O_SYNC
	if backend == BackendBugst {
		switch {
		case s.FlowControl != FlowNone:
			return invalid("flow_control %q is not supported by the bugst backend", s.FlowControl)
		case s.SyncWrite:
			return invalid("sync_write is not supported by the bugst backend")
		case !s.Exclusive:
			return invalid("exclusive=false is not supported by the bugst backend")
		}
	}
	return nil
}

// Extractor returns the packet extractor selected by Framing. FramingNone
// returns nil, which leaves bytes in the buffer for ReadSerial.
func (c *Config) Extractor() (serialdevice.Extractor, error) {
	switch c.Framing {
	case FramingNone, "":
		return nil, nil
	case FramingLines:
		return extract.Lines(), nil
	case FramingSTX:
		return extract.Framed(0x02, 0x03), nil
	case FramingLength:
		return extract.LengthPrefixed(), nil
	case FramingFixed:
		if c.FrameSize <= 0 {
			return nil, fmt.Errorf("%w: fixed framing needs frame_size > 0", serialdevice.ErrInvalidConfig)
		}
		return extract.FixedLength(c.FrameSize), nil
	default:
		return nil, fmt.Errorf("%w: unknown framing %q", serialdevice.ErrInvalidConfig, c.Framing)
	}
}

// Options converts the configuration to controller options
func (c *Config) Options() []serialdevice.Option {
	return []serialdevice.Option{
		serialdevice.WithPortPattern(c.PortPattern),
		serialdevice.WithBitrate(c.Bitrate),
		serialdevice.WithSendTimeout(c.SendTimeout),
		serialdevice.WithOpenTimeout(c.OpenTimeout),
		serialdevice.WithSettleDelay(c.SettleDelay),
		serialdevice.WithTrace(c.Trace.Enabled),
		serialdevice.WithTraceLineLimit(c.Trace.LineLimit),
		serialdevice.WithTraceDebounce(c.Trace.Debounce),
	}
}
