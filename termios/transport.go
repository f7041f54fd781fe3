package termios

import (
	"context"

	"github.com/allbin/serialdevice"
	"github.com/allbin/serialdevice/stream"
	"github.com/rs/zerolog"
)

// NewTransport returns a serialdevice.Transport backed by termios ports.
// portOpts are applied to every open; the bitrate requested by the caller
// overrides any baud rate among them.
func NewTransport(log zerolog.Logger, portOpts ...Option) *stream.Transport {
	open := func(ctx context.Context, path string, o serialdevice.OpenOptions) (stream.Port, error) {
		opts := append([]Option{}, portOpts...)
		if o.Bitrate > 0 {
			opts = append(opts, WithBaudRate(o.Bitrate))
		}
		return Open(path, opts...)
	}
	return stream.New(Enumerate, open, stream.WithLogger(log))
}

// Enumerate lists serial ports as port descriptors
func Enumerate(ctx context.Context) ([]serialdevice.PortDescriptor, error) {
	paths, err := ListPorts()
	if err != nil {
		return nil, err
	}

	descs := make([]serialdevice.PortDescriptor, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := GetPortInfo(path)
		if err != nil {
			continue
		}
		descs = append(descs, info.Descriptor())
	}
	return descs, nil
}

// Descriptor converts the port info to a serialdevice.PortDescriptor
func (p *PortInfo) Descriptor() serialdevice.PortDescriptor {
	return serialdevice.PortDescriptor{
		ID:           p.Path,
		Path:         p.Path,
		Description:  p.Description,
		VendorID:     p.VendorID,
		ProductID:    p.ProductID,
		SerialNumber: p.SerialNumber,
	}
}
