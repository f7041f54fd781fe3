package bugst

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/allbin/serialdevice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

type fakeHandle struct {
	mu       sync.Mutex
	mode     *serial.Mode
	timeout  time.Duration
	dtr      *bool
	rts      *bool
	flushed  bool
	drained  bool
	written  []byte
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeHandle(mode *serial.Mode) *fakeHandle {
	return &fakeHandle{mode: mode, incoming: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeHandle) SetReadTimeout(d time.Duration) error { f.timeout = d; return nil }
func (f *fakeHandle) SetDTR(v bool) error { f.dtr = &v; return nil }
func (f *fakeHandle) SetRTS(v bool) error { f.rts = &v; return nil }
func (f *fakeHandle) ResetInputBuffer() error { f.flushed = true; return nil }
func (f *fakeHandle) Drain() error { f.drained = true; return nil }

func (f *fakeHandle) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b...)
	return len(b), nil
}

func (f *fakeHandle) Read(b []byte) (int, error) {
	select {
	case data := <-f.incoming:
		return copy(b, data), nil
	case <-f.closed:
		return 0, serialdevice.ErrConnectionClosed
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (f *fakeHandle) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func stubOpen(t *testing.T) *[]*fakeHandle {
	t.Helper()
	var handles []*fakeHandle
	old := openPort
	openPort = func(name string, mode *serial.Mode) (portHandle, error) {
		if name == "/dev/missing" {
			return nil, errors.New("no such port")
		}
		h := newFakeHandle(mode)
		handles = append(handles, h)
		return h, nil
	}
	t.Cleanup(func() { openPort = old })
	return &handles
}

func TestOpenAppliesMode(t *testing.T) {
	handles := stubOpen(t)
	dtr := false

	p, err := Open("/dev/ttyUSB0", 19200, Options{InitialDTR: &dtr})
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, *handles, 1)
	h := (*handles)[0]
	assert.Equal(t, 19200, h.mode.BaudRate)
	assert.Equal(t, 8, h.mode.DataBits)
	assert.Equal(t, readTimeout, h.timeout)
	require.NotNil(t, h.dtr)
	assert.False(t, *h.dtr)
}

func TestOpenLineOptions(t *testing.T) {
	handles := stubOpen(t)
	rts := true

	p, err := Open("/dev/ttyUSB0", 9600, Options{
		DataBits:     7,
		Parity:       serial.EvenParity,
		StopBits:     serial.TwoStopBits,
		InitialRTS:   &rts,
		FlushOnOpen:  true,
		DrainOnClose: true,
		ReadTimeout:  250 * time.Millisecond,
	})
	require.NoError(t, err)

	h := (*handles)[0]
	assert.Equal(t, 7, h.mode.DataBits)
	assert.Equal(t, serial.EvenParity, h.mode.Parity)
	assert.Equal(t, serial.TwoStopBits, h.mode.StopBits)
	assert.Nil(t, h.dtr)
	require.NotNil(t, h.rts)
	assert.True(t, *h.rts)
	assert.True(t, h.flushed)
	assert.False(t, h.drained)
	assert.Equal(t, 250*time.Millisecond, h.timeout)

	require.NoError(t, p.Close())
	assert.True(t, h.drained)
}

func TestOpenErrors(t *testing.T) {
	stubOpen(t)

	_, err := Open("/dev/ttyUSB0", 0, Options{})
	assert.ErrorIs(t, err, serialdevice.ErrInvalidBaudRate)

	_, err = Open("/dev/missing", 9600, Options{})
	assert.ErrorContains(t, err, "/dev/missing")
}

func TestTransportRoundTrip(t *testing.T) {
	handles := stubOpen(t)
	tr := NewTransport(zerolog.Nop(), Options{})
	ctx := context.Background()

	got := make(chan []byte, 1)
	remove := tr.OnReceive(func(ev serialdevice.ReceiveEvent) { got <- ev.Data })
	defer remove()

	id, err := tr.Open(ctx, "/dev/ttyUSB0", serialdevice.OpenOptions{Bitrate: 9600, SendTimeout: time.Second})
	require.NoError(t, err)

	h := (*handles)[0]
	h.incoming <- []byte{0x01, 0x02}

	select {
	case data := <-got:
		assert.Equal(t, []byte{0x01, 0x02}, data)
	case <-time.After(time.Second):
		t.Fatal("no receive event")
	}

	n, err := tr.Send(ctx, id, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	h.mu.Lock()
	assert.Equal(t, []byte("ping"), h.written)
	h.mu.Unlock()

	require.NoError(t, tr.Close(ctx, id))
}

func TestTranslate(t *testing.T) {
	// the zero PortError is PortBusy
	busy := &serial.PortError{}
	assert.NotErrorIs(t, translate(busy), serialdevice.ErrConnectionClosed)
	other := errors.New("io")
	assert.Equal(t, other, translate(other))
	assert.NoError(t, translate(nil))
}

func TestEnumerate(t *testing.T) {
	old := listPorts
	listPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A1", Product: "FT232R"},
		}, nil
	}
	defer func() { listPorts = old }()

	descs, err := Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "/dev/ttyS0", descs[0].Path)
	assert.Empty(t, descs[0].VendorID)
	assert.Equal(t, "0403", descs[1].VendorID)
	assert.Equal(t, "6001", descs[1].ProductID)
	assert.Equal(t, "A1", descs[1].SerialNumber)
	assert.Equal(t, "FT232R", descs[1].Description)
}

func TestEnumerateError(t *testing.T) {
	old := listPorts
	listPorts = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("boom") }
	defer func() { listPorts = old }()

	_, err := Enumerate(context.Background())
	assert.ErrorContains(t, err, "boom")
}
