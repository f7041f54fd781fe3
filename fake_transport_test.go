package serialdevice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

var errRefused = errors.New("refused")

type openCall struct {
	path string
	opts OpenOptions
}

// fakeTransport is an in-memory Transport. Opens are recorded in order and
// overlapping opens are counted so tests can assert sequencing.
type fakeTransport struct {
	Listeners

	mu      sync.Mutex
	ports   []PortDescriptor
	fail    map[string]error
	block   map[string]bool
	opens   []openCall
	closed  []ConnectionID
	open    map[ConnectionID]string
	sent    [][]byte
	nextID  int
	sendFn  func(data []byte) (int, error)
	enumErr error

	// onOpen runs after a successful open, before Open returns
	onOpen func(id ConnectionID)

	inFlight atomic.Int32
	overlap  atomic.Int32
}

func newFakeTransport(paths ...string) *fakeTransport {
	f := &fakeTransport{
		fail:  make(map[string]error),
		block: make(map[string]bool),
		open:  make(map[ConnectionID]string),
	}
	for _, p := range paths {
		f.ports = append(f.ports, PortDescriptor{ID: p, Path: p})
	}
	return f
}

func (f *fakeTransport) Enumerate(ctx context.Context) ([]PortDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	return append([]PortDescriptor(nil), f.ports...), nil
}

func (f *fakeTransport) Open(ctx context.Context, path string, opts OpenOptions) (ConnectionID, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Add(1)
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.opens = append(f.opens, openCall{path: path, opts: opts})
	err := f.fail[path]
	block := f.block[path]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.nextID++
	id := ConnectionID(fmt.Sprintf("conn-%d", f.nextID))
	f.open[id] = path
	hook := f.onOpen
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return id, nil
}

func (f *fakeTransport) Close(ctx context.Context, id ConnectionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.open[id]; !ok {
		return ErrUnknownConnection
	}
	delete(f.open, id)
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, id ConnectionID, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.open[id]; !ok {
		return 0, ErrUnknownConnection
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	if f.sendFn != nil {
		return f.sendFn(data)
	}
	return len(data), nil
}

// Deliver dispatches a receive event as a transport reader would
func (f *fakeTransport) Deliver(id ConnectionID, data []byte) {
	f.DispatchReceive(ReceiveEvent{ConnectionID: id, Data: data})
}

func (f *fakeTransport) openPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, len(f.opens))
	for i, c := range f.opens {
		paths[i] = c.path
	}
	return paths
}

func (f *fakeTransport) lastOpen() openCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[len(f.opens)-1]
}

func (f *fakeTransport) isOpen(id ConnectionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.open[id]
	return ok
}

func (f *fakeTransport) setFail(path string, err error) {
	f.mu.Lock()
	f.fail[path] = err
	f.mu.Unlock()
}

// newTestController builds a controller with trace flushing disabled and no
// settle delay unless overridden
func newTestController(t *testing.T, tr Transport, opts ...Option) *Controller {
	t.Helper()
	base := []Option{
		WithPortPattern(`^/dev/ttyUSB\d+$`),
		WithSettleDelay(0),
		WithTraceDebounce(0),
	}
	c, err := New(tr, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

// bytePackets extracts single bytes as packets
var bytePackets = ExtractorFunc(func(buf BufferView) (Packet, bool) {
	if buf.Len() < 1 {
		return nil, false
	}
	b := buf.Get(0)
	buf.Discard(1)
	return b, true
})

// pairPackets extracts two-byte packets
var pairPackets = ExtractorFunc(func(buf BufferView) (Packet, bool) {
	if buf.Len() < 2 {
		return nil, false
	}
	p := [2]byte{buf.Get(0), buf.Get(1)}
	buf.Discard(2)
	return p, true
})

// listenerCount reports how many receive and error listeners are registered
func (f *fakeTransport) listenerCount() (int, int) {
	f.Listeners.mu.Lock()
	defer f.Listeners.mu.Unlock()
	return len(f.Listeners.receive), len(f.Listeners.errs)
}
