package termios

import (
	"errors"

	"github.com/allbin/serialdevice"
)

var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = serialdevice.ErrInvalidBaudRate
	ErrInvalidConfig    = serialdevice.ErrInvalidConfig

	// ErrPortClosed lets the stream reader tell a closed port from a failing one
	ErrPortClosed = serialdevice.ErrConnectionClosed
)
