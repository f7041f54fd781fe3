/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/bugst"
	"github.com/allbin/serialdevice/internal/config"
	"github.com/allbin/serialdevice/termios"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

var (
	configPath string
	cfg        *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialdevice",
	Short: "Find, open and talk to serial instruments",
	Long: `serialdevice finds the first serial port matching a pattern, opens it and
turns the incoming byte stream into packets.

Settings are read from serialdevice.yaml (working directory or the user config
directory), SERIALDEVICE_* environment variables and the flags below, with
flags taking precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		configureLogging(cfg.Log.Level)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./serialdevice.yaml)")
	rootCmd.PersistentFlags().StringP("pattern", "p", defaults.PortPattern, "Regular expression matched against port paths")
	rootCmd.PersistentFlags().IntP("bitrate", "b", defaults.Bitrate, "Bitrate used when opening the port")
	rootCmd.PersistentFlags().String("backend", defaults.Backend, "Serial backend: termios, bugst")
	rootCmd.PersistentFlags().String("log-level", defaults.Log.Level, "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("trace", defaults.Trace.Enabled, "Keep a hex trace of traffic")
	rootCmd.PersistentFlags().String("framing", defaults.Framing, "Packet framing: none, lines, stx, length, fixed")
	rootCmd.PersistentFlags().Int("frame-size", defaults.FrameSize, "Packet size for fixed framing")
	rootCmd.PersistentFlags().String("metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9100")
}

// configureLogging sets up zerolog with a console writer on stderr
func configureLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// newTransport builds the transport selected by the backend setting
func newTransport(c *config.Config) serialdevice.Transport {
	logger := log.Logger.With().Str("backend", c.Backend).Logger()
	switch c.Backend {
	case config.BackendBugst:
		return bugst.NewTransport(logger, bugstOptions(c.Serial))
	default:
		return termios.NewTransport(logger, termiosOptions(c.Serial)...)
	}
}

// termiosOptions maps the serial section to termios port options
func termiosOptions(s config.SerialConfig) []termios.Option {
	opts := []termios.Option{
		termios.WithDataBits(s.DataBits),
		termios.WithStopBits(s.StopBits),
		termios.WithExclusive(s.Exclusive),
		termios.WithReadTimeout(s.ReadTimeout),
	}
	switch s.Parity {
	case config.ParityOdd:
		opts = append(opts, termios.WithParity(termios.ParityOdd))
	case config.ParityEven:
		opts = append(opts, termios.WithParity(termios.ParityEven))
	}
	if s.FlowControl == config.FlowRTSCTS {
		opts = append(opts, termios.WithFlowControl(termios.FlowControlRTSCTS))
	}
	if s.SyncWrite {
		opts = append(opts, termios.WithSyncWrite())
	}
	if s.DTR != nil {
		opts = append(opts, termios.WithInitialDTR(*s.DTR))
	}
	if s.RTS != nil {
		opts = append(opts, termios.WithInitialRTS(*s.RTS))
	}
	if s.FlushOnOpen {
		opts = append(opts, termios.WithFlushOnOpen())
	}
	if s.DrainOnClose {
		opts = append(opts, termios.WithDrainOnClose())
	}
	return opts
}

// bugstOptions maps the serial section to go.bug.st/serial mode settings
func bugstOptions(s config.SerialConfig) bugst.Options {
	o := bugst.Options{
		DataBits:     s.DataBits,
		Parity:       serial.NoParity,
		StopBits:     serial.OneStopBit,
		InitialDTR:   s.DTR,
		InitialRTS:   s.RTS,
		FlushOnOpen:  s.FlushOnOpen,
		DrainOnClose: s.DrainOnClose,
		ReadTimeout:  s.ReadTimeout,
	}
	switch s.Parity {
	case config.ParityOdd:
		o.Parity = serial.OddParity
	case config.ParityEven:
		o.Parity = serial.EvenParity
	}
	if s.StopBits == 2 {
		o.StopBits = serial.TwoStopBits
	}
	return o
}

// newController creates a Controller from the loaded configuration. When a
// metrics address is configured a registry is created and served over HTTP.
func newController(c *config.Config) (*serialdevice.Controller, error) {
	opts := append(c.Options(), serialdevice.WithLogger(log.Logger))

	if c.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, serialdevice.WithMetrics(reg))
		serveMetrics(c.Metrics.Listen, reg)
	}

	return serialdevice.New(newTransport(c), opts...)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
}

// connect creates a Controller and connects it with the configured framing
func connect(ctx context.Context) (*serialdevice.Controller, *serialdevice.Connection, error) {
	dev, err := newController(cfg)
	if err != nil {
		return nil, nil, err
	}
	extractor, err := cfg.Extractor()
	if err != nil {
		return nil, nil, err
	}
	conn, err := dev.Connect(ctx, extractor)
	if err != nil {
		_ = dev.Close(context.Background())
		if errors.Is(err, serialdevice.ErrPortUnavailable) {
			return nil, nil, fmt.Errorf("%w (pattern %s, skipped %v)", err, cfg.PortPattern, dev.Manager().SkipList())
		}
		return nil, nil, err
	}
	return dev, conn, nil
}
