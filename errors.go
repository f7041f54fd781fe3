package serialdevice

import "errors"

// Predefined error types for robust error handling
var (
	ErrInvalidConfig   = errors.New("invalid serial device configuration")
	ErrInvalidBaudRate = errors.New("invalid baud rate")
	ErrInvalidPattern  = errors.New("invalid port pattern")

	// Connection lifecycle errors
	ErrPortUnavailable   = errors.New("no matching port could be opened")
	ErrNotConnected      = errors.New("serial device is not connected")
	ErrAlreadyConnected  = errors.New("serial device is already connected")
	ErrConnectionClosed  = errors.New("serial connection is closed")
	ErrUnknownConnection = errors.New("unknown serial connection")

	// Write errors, reported to the caller but never fatal to the session
	ErrWriteMismatch  = errors.New("bytes sent differ from bytes requested")
	ErrTransportWrite = errors.New("transport reported a send error")
)
