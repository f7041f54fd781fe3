// Package bugst is a portable serialdevice.Transport built on go.bug.st/serial.
// Use it where the termios backend is unavailable (macOS, Windows).
package bugst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/stream"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// readTimeout bounds each Read so the stream reader notices Close, unless
// Options.ReadTimeout overrides it
const readTimeout = 100 * time.Millisecond

// allow tests to override external dependencies
var (
	openPort  = func(name string, mode *serial.Mode) (portHandle, error) { return serial.Open(name, mode) }
	listPorts = enumerator.GetDetailedPortsList
)

type portHandle interface {
	SetReadTimeout(timeout time.Duration) error
	SetDTR(bool) error
	SetRTS(bool) error
	ResetInputBuffer() error
	Drain() error
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	Close() error
}

// Options configure the port mode used for every open
type Options struct {
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
	// InitialDTR and InitialRTS, when set, are applied right after opening
	InitialDTR *bool
	InitialRTS *bool
	// FlushOnOpen discards input buffered before the open
	FlushOnOpen bool
	// DrainOnClose waits for pending output before closing
	DrainOnClose bool
	ReadTimeout  time.Duration
}

// NewTransport returns a serialdevice.Transport backed by go.bug.st/serial
func NewTransport(log zerolog.Logger, opts Options) *stream.Transport {
	open := func(ctx context.Context, path string, o serialdevice.OpenOptions) (stream.Port, error) {
		return Open(path, o.Bitrate, opts)
	}
	return stream.New(Enumerate, open, stream.WithLogger(log))
}

// Open opens path at bitrate and sets a short read timeout
func Open(path string, bitrate int, opts Options) (stream.Port, error) {
	if bitrate <= 0 {
		return nil, serialdevice.ErrInvalidBaudRate
	}
	mode := &serial.Mode{
		BaudRate: bitrate,
		DataBits: opts.DataBits,
		Parity:   opts.Parity,
		StopBits: opts.StopBits,
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	h, err := openPort(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = readTimeout
	}
	if err := h.SetReadTimeout(timeout); err != nil {
		h.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	if opts.InitialDTR != nil {
		if err := h.SetDTR(*opts.InitialDTR); err != nil {
			h.Close()
			return nil, fmt.Errorf("set DTR on %s: %w", path, err)
		}
	}
	if opts.InitialRTS != nil {
		if err := h.SetRTS(*opts.InitialRTS); err != nil {
			h.Close()
			return nil, fmt.Errorf("set RTS on %s: %w", path, err)
		}
	}
	if opts.FlushOnOpen {
		if err := h.ResetInputBuffer(); err != nil {
			h.Close()
			return nil, fmt.Errorf("flush input on %s: %w", path, err)
		}
	}
	return &port{h: h, drain: opts.DrainOnClose}, nil
}

// port translates go.bug.st close errors into serialdevice.ErrConnectionClosed
type port struct {
	h     portHandle
	drain bool
}

func (p *port) Read(b []byte) (int, error) {
	n, err := p.h.Read(b)
	return n, translate(err)
}

func (p *port) Write(b []byte) (int, error) {
	n, err := p.h.Write(b)
	return n, translate(err)
}

func (p *port) Close() error {
	if p.drain {
		_ = p.h.Drain()
	}
	return translate(p.h.Close())
}

func translate(err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
		return serialdevice.ErrConnectionClosed
	}
	return err
}

// Enumerate lists ports with their USB metadata where available
func Enumerate(ctx context.Context) ([]serialdevice.PortDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerator error: %w", err)
	}

	descs := make([]serialdevice.PortDescriptor, 0, len(ports))
	for _, p := range ports {
		d := serialdevice.PortDescriptor{
			ID:          p.Name,
			Path:        p.Name,
			Description: "Serial Port",
		}
		if p.IsUSB {
			d.VendorID = p.VID
			d.ProductID = p.PID
			d.SerialNumber = p.SerialNumber
			d.Description = p.Product
			if d.Description == "" {
				d.Description = "USB Serial Port"
			}
		}
		descs = append(descs, d)
	}
	return descs, nil
}
