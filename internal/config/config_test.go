package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "serialdevice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// chdir changes the working directory for the duration of the test, like
// testing.T.Chdir (which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Setenv("PWD", dir)
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, serialdevice.DefaultPortPattern, cfg.PortPattern)
	assert.Equal(t, 9600, cfg.Bitrate)
	assert.Equal(t, BackendTermios, cfg.Backend)
	assert.Equal(t, FramingLines, cfg.Framing)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, 400, cfg.Trace.LineLimit)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.Equal(t, 8, cfg.Serial.DataBits)
	assert.Equal(t, ParityNone, cfg.Serial.Parity)
	assert.True(t, cfg.Serial.Exclusive)
	assert.Nil(t, cfg.Serial.DTR)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
port_pattern: ^/dev/ttyACM\d+$
bitrate: 115200
backend: bugst
send_timeout: 1s
settle_delay: 200ms
framing: fixed
frame_size: 8
log:
  level: debug
trace:
  enabled: false
  line_limit: 50
  debounce: 0s
metrics:
  listen: ":9100"
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, `^/dev/ttyACM\d+$`, cfg.PortPattern)
	assert.Equal(t, 115200, cfg.Bitrate)
	assert.Equal(t, BackendBugst, cfg.Backend)
	assert.Equal(t, time.Second, cfg.SendTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, FramingFixed, cfg.Framing)
	assert.Equal(t, 8, cfg.FrameSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Trace.Enabled)
	assert.Equal(t, 50, cfg.Trace.LineLimit)
	assert.Zero(t, cfg.Trace.Debounce)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().PortPattern, cfg.PortPattern)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SERIALDEVICE_BITRATE", "57600")
	t.Setenv("SERIALDEVICE_LOG_LEVEL", "warn")

	path := writeConfig(t, "bitrate: 19200\n")
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 57600, cfg.Bitrate)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFlagsOverride(t *testing.T) {
	t.Setenv("SERIALDEVICE_BITRATE", "57600")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("bitrate", 9600, "")
	fs.String("framing", FramingLines, "")
	fs.String("backend", BackendTermios, "")
	require.NoError(t, fs.Parse([]string{"--bitrate", "38400", "--framing", "stx"}))

	path := writeConfig(t, "backend: bugst\n")
	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 38400, cfg.Bitrate)
	assert.Equal(t, FramingSTX, cfg.Framing)
	// unset flags do not shadow the file
	assert.Equal(t, BackendBugst, cfg.Backend)
}

func TestLoadSerialSection(t *testing.T) {
	path := writeConfig(t, `
serial:
  data_bits: 7
  stop_bits: 2
  parity: even
  dtr: false
  flush_on_open: true
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Serial.DataBits)
	assert.Equal(t, 2, cfg.Serial.StopBits)
	assert.Equal(t, ParityEven, cfg.Serial.Parity)
	require.NotNil(t, cfg.Serial.DTR)
	assert.False(t, *cfg.Serial.DTR)
	assert.Nil(t, cfg.Serial.RTS)
	assert.True(t, cfg.Serial.FlushOnOpen)
	assert.True(t, cfg.Serial.Exclusive)
	assert.Equal(t, FlowNone, cfg.Serial.FlowControl)
}

func TestLoadSerialEnv(t *testing.T) {
	t.Setenv("SERIALDEVICE_SERIAL_RTS", "true")
	t.Setenv("SERIALDEVICE_SERIAL_PARITY", "odd")

	cfg, err := Load(writeConfig(t, "bitrate: 9600\n"), nil)
	require.NoError(t, err)
	require.NotNil(t, cfg.Serial.RTS)
	assert.True(t, *cfg.Serial.RTS)
	assert.Nil(t, cfg.Serial.DTR)
	assert.Equal(t, ParityOdd, cfg.Serial.Parity)
}

func TestValidateBugstReadTimeout(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendBugst
	cfg.Serial.ReadTimeout = 150 * time.Millisecond
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"backend", func(c *Config) { c.Backend = "winapi" }},
		{"framing", func(c *Config) { c.Framing = "slip" }},
		{"fixed without size", func(c *Config) { c.Framing = FramingFixed; c.FrameSize = 0 }},
		{"data bits", func(c *Config) { c.Serial.DataBits = 9 }},
		{"stop bits", func(c *Config) { c.Serial.StopBits = 3 }},
		{"parity", func(c *Config) { c.Serial.Parity = "mark" }},
		{"flow control", func(c *Config) { c.Serial.FlowControl = "xonxoff" }},
		{"bugst flow control", func(c *Config) { c.Backend = BackendBugst; c.Serial.FlowControl = FlowRTSCTS }},
		{"bugst sync write", func(c *Config) { c.Backend = BackendBugst; c.Serial.SyncWrite = true }},
		{"bugst shared", func(c *Config) { c.Backend = BackendBugst; c.Serial.Exclusive = false }},
		{"zero read timeout", func(c *Config) { c.Serial.ReadTimeout = 0 }},
		{"termios read timeout step", func(c *Config) { c.Serial.ReadTimeout = 150 * time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), serialdevice.ErrInvalidConfig)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "framing: slip\n")
	_, err := Load(path, nil)
	assert.ErrorIs(t, err, serialdevice.ErrInvalidConfig)
}

func TestExtractor(t *testing.T) {
	cfg := Default()

	for _, framing := range []string{FramingLines, FramingSTX, FramingLength} {
		cfg.Framing = framing
		ex, err := cfg.Extractor()
		require.NoError(t, err, framing)
		assert.NotNil(t, ex, framing)
	}

	cfg.Framing = FramingFixed
	cfg.FrameSize = 4
	ex, err := cfg.Extractor()
	require.NoError(t, err)
	assert.NotNil(t, ex)

	cfg.Framing = FramingNone
	ex, err = cfg.Extractor()
	require.NoError(t, err)
	assert.Nil(t, ex)
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Bitrate = 115200
	cfg.SettleDelay = 0
	cfg.Trace.Enabled = false

	dev, err := serialdevice.New(nil, cfg.Options()...)
	require.NoError(t, err)
	assert.Equal(t, 115200, dev.Bitrate())
	assert.Equal(t, cfg.PortPattern, dev.PortPattern())
	assert.False(t, dev.Trace().Enabled())
}
