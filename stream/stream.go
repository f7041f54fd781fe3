// Package stream implements serialdevice.Transport over any byte stream port
// whose Read returns periodically, such as a termios fd with VTIME set or a
// go.bug.st/serial port with a read timeout.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Port is an open serial device. Read may return (0, nil) when its timeout
// expires; the reader uses that to notice Close.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Enumerator lists the ports a backend can open
type Enumerator func(ctx context.Context) ([]serialdevice.PortDescriptor, error)

// Opener opens path with the given options
type Opener func(ctx context.Context, path string, opts serialdevice.OpenOptions) (Port, error)

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the logger used for reader lifecycle messages
func WithLogger(log zerolog.Logger) Option {
	return func(t *Transport) {
		t.log = log
	}
}

// WithReadSize sets the size of the per-connection read buffer
func WithReadSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.readSize = n
		}
	}
}

// Transport multiplexes open ports behind connection IDs and delivers
// received bytes to registered listeners, one reader goroutine per connection
type Transport struct {
	enumerate Enumerator
	open      Opener
	log       zerolog.Logger
	readSize  int
	listeners serialdevice.Listeners

	mu    sync.Mutex
	conns map[serialdevice.ConnectionID]*conn
}

type conn struct {
	id          serialdevice.ConnectionID
	path        string
	port        Port
	sendTimeout time.Duration
	closing     atomic.Bool
	done        chan struct{} // reader stopped
	stop        chan struct{} // Close called
	writes      chan *writeRequest
}

// Write request states. The writer claims a queued request before writing
// it; a sender whose deadline passes first abandons it instead.
const (
	writeQueued int32 = iota
	writeStarted
	writeAbandoned
)

type writeRequest struct {
	data   []byte
	state  atomic.Int32
	result chan writeResult
}

type writeResult struct {
	n   int
	err error
}

var _ serialdevice.Transport = (*Transport)(nil)

// New creates a Transport from a backend's enumerate and open functions
func New(enumerate Enumerator, open Opener, opts ...Option) *Transport {
	t := &Transport{
		enumerate: enumerate,
		open:      open,
		log:       zerolog.Nop(),
		readSize:  4096,
		conns:     make(map[serialdevice.ConnectionID]*conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enumerate lists available ports
func (t *Transport) Enumerate(ctx context.Context) ([]serialdevice.PortDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.enumerate(ctx)
}

// Open opens path and starts delivering its bytes to receive listeners.
// An opener that outlives ctx is abandoned; the port it eventually returns
// is closed.
func (t *Transport) Open(ctx context.Context, path string, opts serialdevice.OpenOptions) (serialdevice.ConnectionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type openResult struct {
		port Port
		err  error
	}
	resultCh := make(chan openResult, 1)
	go func() {
		port, err := t.open(ctx, path, opts)
		resultCh <- openResult{port: port, err: err}
	}()

	var port Port
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}
		port = result.port
	case <-ctx.Done():
		go func() {
			if result := <-resultCh; result.err == nil {
				result.port.Close()
				t.log.Debug().Str("port", path).Msg("closed port that opened after its deadline")
			}
		}()
		return "", fmt.Errorf("open %s: %w", path, ctx.Err())
	}

	c := &conn{
		id:          serialdevice.ConnectionID(uuid.NewString()),
		path:        path,
		port:        port,
		sendTimeout: opts.SendTimeout,
		done:        make(chan struct{}),
		stop:        make(chan struct{}),
		writes:      make(chan *writeRequest),
	}

	t.mu.Lock()
	t.conns[c.id] = c
	t.mu.Unlock()

	go t.readLoop(c)
	go t.writeLoop(c)

	t.log.Debug().Str("port", path).Str("conn", string(c.id)).Int("bitrate", opts.Bitrate).Msg("opened")
	return c.id, nil
}

// Close closes the connection and waits for its reader to stop
func (t *Transport) Close(ctx context.Context, id serialdevice.ConnectionID) error {
	t.mu.Lock()
	c, ok := t.conns[id]
	delete(t.conns, id)
	t.mu.Unlock()
	if !ok {
		return serialdevice.ErrUnknownConnection
	}

	c.closing.Store(true)
	close(c.stop)
	err := c.port.Close()

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Send writes data, bounded by the send timeout given at open. Writes reach
// the port one at a time in the order they were queued. A send whose deadline
// passes before its write starts never touches the port; once a write has
// started, Send reports what the port returned.
func (t *Transport) Send(ctx context.Context, id serialdevice.ConnectionID, data []byte) (int, error) {
	t.mu.Lock()
	c, ok := t.conns[id]
	t.mu.Unlock()
	if !ok {
		return 0, serialdevice.ErrUnknownConnection
	}

	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}

	req := &writeRequest{data: data, result: make(chan writeResult, 1)}
	select {
	case c.writes <- req:
	case <-ctx.Done():
		return 0, fmt.Errorf("send to %s: %w", c.path, ctx.Err())
	case <-c.stop:
		return 0, serialdevice.ErrConnectionClosed
	}

	select {
	case result := <-req.result:
		return result.n, result.err
	case <-ctx.Done():
		if req.state.CompareAndSwap(writeQueued, writeAbandoned) {
			return 0, fmt.Errorf("send to %s: %w", c.path, ctx.Err())
		}
	}

	select {
	case result := <-req.result:
		return result.n, result.err
	case <-c.stop:
		return 0, serialdevice.ErrConnectionClosed
	}
}

// writeLoop performs queued writes until Close
func (t *Transport) writeLoop(c *conn) {
	for {
		select {
		case <-c.stop:
			return
		case req := <-c.writes:
			if !req.state.CompareAndSwap(writeQueued, writeStarted) {
				continue
			}
			n, err := c.port.Write(req.data)
			req.result <- writeResult{n: n, err: err}
		}
	}
}

// OnReceive registers a receive listener
func (t *Transport) OnReceive(fn func(serialdevice.ReceiveEvent)) func() {
	return t.listeners.OnReceive(fn)
}

// OnReceiveError registers a receive error listener
func (t *Transport) OnReceiveError(fn func(serialdevice.ReceiveErrorEvent)) func() {
	return t.listeners.OnReceiveError(fn)
}

// readLoop delivers bytes in read order. It stops on Close or on the first
// read error, which is reported to error listeners.
func (t *Transport) readLoop(c *conn) {
	defer close(c.done)

	buf := make([]byte, t.readSize)
	for {
		n, err := c.port.Read(buf)
		if n > 0 && !c.closing.Load() {
			data := make([]byte, n)
			copy(data, buf[:n])
			t.listeners.DispatchReceive(serialdevice.ReceiveEvent{ConnectionID: c.id, Data: data})
		}
		if c.closing.Load() {
			return
		}
		if err != nil {
			if errors.Is(err, serialdevice.ErrConnectionClosed) {
				return
			}
			t.log.Debug().Err(err).Str("port", c.path).Msg("reader stopped")
			t.listeners.DispatchError(serialdevice.ReceiveErrorEvent{ConnectionID: c.id, Err: err})
			return
		}
	}
}
