// Package termios opens Linux serial ports directly through termios ioctls
// and enumerates them from /dev and sysfs. NewTransport exposes it as a
// serialdevice.Transport.
package termios

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Port is an open serial port
type Port struct {
	mu     sync.RWMutex
	fd     int
	path   string
	config Config
	closed bool
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 3000000:
		return unix.B3000000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// openError maps errno values from open(2) to package errors
func openError(device string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		return ErrDeviceNotFound
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return ErrPermissionDenied
	case errors.Is(err, unix.EBUSY):
		return ErrDeviceInUse
	default:
		return fmt.Errorf("failed to open %s: %w", device, err)
	}
}

// Open opens a serial port with the given device path and options.
//
// The device is opened non-blocking so a missing carrier cannot hang the
// call, then switched back to blocking reads governed by VTIME.
func Open(device string, opts ...Option) (*Port, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	flags := unix.O_RDWR | unix.O_NOCTTY | unix.O_NONBLOCK | unix.O_CLOEXEC
	if config.WriteMode == WriteModeSynced {
		flags |= unix.O_SYNC
	}

	fd, err := unix.Open(device, flags, 0)
	if err != nil {
		return nil, openError(device, err)
	}

	if config.Exclusive {
		if err := unix.IoctlSetInt(fd, unix.TIOCEXCL, 0); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to claim %s: %w", device, err)
		}
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to clear O_NONBLOCK: %w", err)
	}

	if config.InitialRTS != nil {
		if err := setModemBit(fd, unix.TIOCM_RTS, *config.InitialRTS); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set initial RTS: %w", err)
		}
	}
	if config.InitialDTR != nil {
		if err := setModemBit(fd, unix.TIOCM_DTR, *config.InitialDTR); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set initial DTR: %w", err)
		}
	}

	p := &Port{fd: fd, path: device, config: config}
	if config.FlushOnOpen {
		if err := p.FlushInput(); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to flush input: %w", err)
		}
	}
	return p, nil
}

// configurePort puts the port in raw mode with the configured framing
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	termios.Cflag = unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	// VMIN=0 with VTIME set: read returns after the timeout even with no data
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = uint8(config.ReadTimeout.Milliseconds() / 100)

	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	switch config.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if config.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch config.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	}

	if config.FlowControl == FlowControlRTSCTS {
		termios.Cflag |= unix.CRTSCTS
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

func setModemBit(fd int, bit int, state bool) error {
	if state {
		return unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, bit)
	}
	return unix.IoctlSetPointerInt(fd, unix.TIOCMBIC, bit)
}

// Close closes the serial port, first draining output when DrainOnClose is set
func (p *Port) Close() error {
	if p.config.DrainOnClose {
		// a closed port reports ErrPortClosed below
		_ = p.Drain()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true
	return unix.Close(p.fd)
}

// Read reads data from the serial port. It returns (0, nil) when the read
// timeout expires without data.
func (p *Port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	n, err := unix.Read(p.fd, buf)
	if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

// Write writes data to the serial port
func (p *Port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n > 0 {
			written += n
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Drain waits until all output written to the port has been transmitted
func (p *Port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// FlushInput discards any unread input data
func (p *Port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}
