package serialdevice

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Controller drives one serial device: it connects through a
// ConnectionManager, feeds received bytes through the Extractor into the packet
// queue, and offers bounded read/write primitives on the open connection.
//
// Every handler (receive event, error event, API call) runs under a single
// state mutex, so buffer, queue and connection are never mutated concurrently.
// Transport calls are made without that mutex held.
type Controller struct {
	transport Transport
	manager   *ConnectionManager
	config    Config
	log       zerolog.Logger
	trace     *TraceLogger
	metrics   *Metrics
	view      bufferView

	seq sync.Mutex // serializes connect, disconnect and bitrate changes

	mu         sync.Mutex
	pattern    *regexp.Regexp
	bitrate    int
	conn       *Connection
	opening    bool
	pending    []ReceiveEvent
	buffer     ByteBuffer
	queue      PacketQueue
	extractor  Extractor
	removeRecv func()
	removeErr  func()
	dataReady  chan struct{}
}

// New creates a Controller on top of t
func New(t Transport, opts ...Option) (*Controller, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	pattern, err := compilePattern(config.PortPattern)
	if err != nil {
		return nil, err
	}

	var metrics *Metrics
	if config.Registerer != nil {
		if metrics, err = NewMetrics(config.Registerer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	log := config.Logger.With().Str("component", "serialdevice").Logger()
	c := &Controller{
		transport: t,
		config:    config,
		log:       log,
		metrics:   metrics,
		trace: NewTraceLogger(
			config.Logger.With().Str("component", "trace").Logger(),
			config.TraceEnabled, config.TraceLineLimit, config.TraceDebounce,
		),
		pattern:   pattern,
		bitrate:   config.Bitrate,
		dataReady: make(chan struct{}),
	}
	c.manager = newConnectionManager(t, config, log, metrics)
	c.view = bufferView{c: c}
	return c, nil
}

// SetPortPattern replaces the pattern used by the next Connect
func (c *Controller) SetPortPattern(pattern string) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pattern = re
	c.mu.Unlock()
	return nil
}

// PortPattern returns the current port pattern
func (c *Controller) PortPattern() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pattern.String()
}

// SetBitrate sets the bitrate used by the next Connect
func (c *Controller) SetBitrate(rate int) error {
	if rate <= 0 {
		return ErrInvalidBaudRate
	}
	c.mu.Lock()
	c.bitrate = rate
	c.mu.Unlock()
	return nil
}

// Bitrate returns the held bitrate
func (c *Controller) Bitrate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bitrate
}

// Manager returns the connection manager owning the skip set
func (c *Controller) Manager() *ConnectionManager {
	return c.manager
}

// Trace returns the trace logger
func (c *Controller) Trace() *TraceLogger {
	return c.trace
}

// Connection returns a copy of the open connection
func (c *Controller) Connection() (Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return Connection{}, false
	}
	return *c.conn, true
}

// Buffered returns the number of bytes waiting in the receive buffer
func (c *Controller) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Len()
}

// Connect finds and opens a port matching the pattern and binds extractor to
// it. Listeners are registered before the first open so bytes that arrive
// while the connection is being established are kept.
func (c *Controller) Connect(ctx context.Context, extractor Extractor) (*Connection, error) {
	c.seq.Lock()
	defer c.seq.Unlock()

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.registerListenersLocked()
	c.flushLocked()
	c.buffer.Reset()
	c.extractor = extractor
	c.opening = true
	c.pending = nil
	pattern, bitrate := c.pattern, c.bitrate
	c.mu.Unlock()

	conn, err := c.manager.Connect(ctx, pattern, bitrate)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false
	if err != nil {
		c.pending = nil
		c.extractor = nil
		c.unregisterListenersLocked()
		c.log.Warn().Err(err).Str("pattern", pattern.String()).Msg("connect failed")
		return nil, err
	}

	c.trace.Writef("connect %s\n", conn.Port.Path)
	c.bindLocked(conn)
	out := *conn
	return &out, nil
}

// Disconnect stops receive processing, closes the open connection if any and
// resets buffer, queue and extractor. It is safe to call when not connected.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.seq.Lock()
	defer c.seq.Unlock()

	c.mu.Lock()
	c.unregisterListenersLocked()
	conn := c.conn
	c.conn = nil
	c.metrics.setConnected(nil)
	c.mu.Unlock()

	var err error
	if conn != nil {
		if cerr := c.transport.Close(ctx, conn.ID); cerr != nil {
			c.log.Warn().Err(cerr).Str("port", conn.Port.Path).Msg("close failed")
			err = fmt.Errorf("close %s: %w", conn.Port.Path, cerr)
		} else {
			c.log.Info().Str("port", conn.Port.Path).Msg("disconnected")
		}
	}

	c.mu.Lock()
	c.buffer.Reset()
	c.queue.Clear()
	c.extractor = nil
	c.pending = nil
	c.trace.Write("disconnect\n")
	c.mu.Unlock()
	return err
}

// ChangeBitRate closes the open connection, waits for the settle delay and
// reopens the same port at rate. It returns false without error when nothing
// is connected. On a failed reopen the controller is left disconnected.
func (c *Controller) ChangeBitRate(ctx context.Context, rate int) (bool, error) {
	if rate <= 0 {
		return false, ErrInvalidBaudRate
	}

	c.seq.Lock()
	defer c.seq.Unlock()

	c.mu.Lock()
	old := c.conn
	if old == nil {
		c.mu.Unlock()
		return false, nil
	}
	c.log.Info().Int("from", old.Bitrate).Int("to", rate).Str("port", old.Port.Path).Msg("changing bitrate")
	c.trace.Writef("bitrate %d\n", rate)
	c.bitrate = rate
	c.conn = nil
	c.opening = true
	c.pending = nil
	c.mu.Unlock()

	if err := c.transport.Close(ctx, old.ID); err != nil {
		c.log.Warn().Err(err).Str("port", old.Port.Path).Msg("close before bitrate change failed")
	}

	timer := time.NewTimer(c.config.SettleDelay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		c.abortOpening()
		return false, ctx.Err()
	}

	conn, err := c.manager.Reopen(ctx, old.Port, rate)
	if err != nil {
		c.abortOpening()
		c.log.Error().Err(err).Str("port", old.Port.Path).Msg("reconnect failed")
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false
	c.bindLocked(conn)
	c.log.Info().Str("port", conn.Port.Path).Int("bitrate", rate).Msg("reconnected")
	return true, nil
}

// abortOpening leaves the controller disconnected after a cancelled or failed
// reopen, releasing the same state Disconnect does
func (c *Controller) abortOpening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = false
	c.pending = nil
	c.unregisterListenersLocked()
	c.buffer.Reset()
	c.queue.Clear()
	c.extractor = nil
	c.metrics.setConnected(nil)
	c.trace.Write("disconnect\n")
}

// DiscardBytes drops up to n bytes from the front of the receive buffer
func (c *Controller) DiscardBytes(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardLocked(n)
}

// ReadSerial returns exactly n bytes when they are buffered. Otherwise it waits
// at most timeout for them and then returns whatever is buffered, possibly
// nothing, clearing the buffer. A zero timeout never waits. Running out of
// time is not an error.
func (c *Controller) ReadSerial(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		c.mu.Lock()
		if c.buffer.Len() >= n {
			out := c.buffer.Take(n)
			c.mu.Unlock()
			return out, nil
		}
		if expired == nil {
			out := c.buffer.Take(c.buffer.Len())
			c.mu.Unlock()
			return out, nil
		}
		ready := c.dataReady
		c.mu.Unlock()

		select {
		case <-ready:
		case <-expired:
			expired = nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WriteSerial sends data on the open connection. Short writes and transport
// errors are logged and returned; the connection stays open either way.
func (c *Controller) WriteSerial(ctx context.Context, data []byte) (int, error) {
	if len(data) == 0 {
		c.log.Warn().Msg("tried to send nothing")
		return 0, nil
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	n, err := c.transport.Send(ctx, conn.ID, data)
	c.trace.Dump(" xmit", data)
	c.metrics.sent(n)

	if err != nil {
		c.metrics.writeFailed("transport")
		c.log.Error().Err(err).Str("port", conn.Port.Path).Int("sent", n).Msg("error in write")
		return n, fmt.Errorf("%w: %w", ErrTransportWrite, err)
	}
	if n != len(data) {
		c.metrics.writeFailed("mismatch")
		c.log.Warn().Int("sent", n).Int("requested", len(data)).Msg("short write")
		return n, fmt.Errorf("%w: sent %d of %d bytes", ErrWriteMismatch, n, len(data))
	}
	return n, nil
}

// SetPacketHandler binds the extractor used on subsequent receive events
func (c *Controller) SetPacketHandler(extractor Extractor) {
	c.mu.Lock()
	c.extractor = extractor
	c.mu.Unlock()
}

// ClearPacketHandler unbinds the extractor; bytes then accumulate until read
func (c *Controller) ClearPacketHandler() {
	c.SetPacketHandler(nil)
}

// HasAvailablePacket reports whether the packet queue is non-empty
func (c *Controller) HasAvailablePacket() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len() > 0
}

// PeekPacket returns the oldest queued packet without removing it
func (c *Controller) PeekPacket() (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Peek()
}

// NextPacket removes and returns the oldest queued packet
func (c *Controller) NextPacket() (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Next()
}

// Flush drops every queued packet
func (c *Controller) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// EmitLog writes the trace log to the logger now, optionally clearing it
func (c *Controller) EmitLog(clear bool) {
	c.trace.Emit(clear)
}

// Close disconnects and stops the trace logger
func (c *Controller) Close(ctx context.Context) error {
	err := c.Disconnect(ctx)
	c.trace.Close()
	return err
}

func (c *Controller) registerListenersLocked() {
	if c.removeRecv == nil {
		c.removeRecv = c.transport.OnReceive(c.handleReceive)
	}
	if c.removeErr == nil {
		c.removeErr = c.transport.OnReceiveError(c.handleReceiveError)
	}
}

// unregisterListenersLocked removes the receive listener before the error
// listener so no further bytes are processed
func (c *Controller) unregisterListenersLocked() {
	if c.removeRecv != nil {
		c.removeRecv()
		c.removeRecv = nil
	}
	if c.removeErr != nil {
		c.removeErr()
		c.removeErr = nil
	}
}

func (c *Controller) bindLocked(conn *Connection) {
	c.conn = conn
	c.metrics.setConnected(conn)

	pending := c.pending
	c.pending = nil
	for _, ev := range pending {
		if ev.ConnectionID == conn.ID {
			c.receiveLocked(ev.Data)
		}
	}
}

func (c *Controller) handleReceive(ev ReceiveEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(ev.Data) == 0 {
		return
	}
	if c.conn == nil || ev.ConnectionID != c.conn.ID {
		if c.opening {
			data := make([]byte, len(ev.Data))
			copy(data, ev.Data)
			c.pending = append(c.pending, ReceiveEvent{ConnectionID: ev.ConnectionID, Data: data})
		}
		return
	}
	c.receiveLocked(ev.Data)
}

func (c *Controller) handleReceiveError(ev ReceiveErrorEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.receiveFailed()
	c.log.Error().Err(ev.Err).Str("conn", string(ev.ConnectionID)).Msg("error from serial port")
}

func (c *Controller) receiveLocked(data []byte) {
	c.buffer.Append(data)
	c.metrics.received(len(data))
	c.trace.Dump("  rcv", data)

	close(c.dataReady)
	c.dataReady = make(chan struct{})

	c.extractLocked()
}

// extractLocked runs the extractor until it reports no packet. One receive
// event may produce any number of packets.
func (c *Controller) extractLocked() {
	for c.extractor != nil {
		before := c.buffer.Len()
		pkt, ok := c.extractor.TryExtract(c.view)
		if !ok {
			return
		}
		c.queue.Push(pkt)
		c.metrics.extracted()
		if c.buffer.Len() == before {
			c.log.Warn().Msg("extractor returned a packet without consuming bytes")
			return
		}
	}
}

func (c *Controller) discardLocked(n int) {
	c.trace.Writef("discard %d\n", n)
	c.buffer.Discard(n)
}

func (c *Controller) flushLocked() {
	c.trace.Write("flush\n")
	c.queue.Clear()
}

// bufferView is handed to extractors while the state mutex is held
type bufferView struct {
	c *Controller
}

func (v bufferView) Get(i int) byte { return v.c.buffer.Get(i) }
func (v bufferView) Len() int { return v.c.buffer.Len() }
func (v bufferView) Discard(n int) { v.c.discardLocked(n) }
func (v bufferView) Bytes() []byte { return v.c.buffer.Bytes() }
