package serialdevice

import (
	"context"
	"sync"
	"time"
)

// ConnectionID identifies an open transport connection
type ConnectionID string

// PortDescriptor describes an enumerated serial port
type PortDescriptor struct {
	ID           string
	Path         string
	Description  string
	VendorID     string
	ProductID    string
	SerialNumber string
}

// OpenOptions are passed to the transport when a port is opened
type OpenOptions struct {
	Bitrate     int
	SendTimeout time.Duration
}

// ReceiveEvent carries bytes read from an open connection
type ReceiveEvent struct {
	ConnectionID ConnectionID
	Data         []byte
}

// ReceiveErrorEvent reports an asynchronous read failure on a connection
type ReceiveErrorEvent struct {
	ConnectionID ConnectionID
	Err          error
}

// Transport is the OS-level serial provider the core talks to.
//
// Receive listeners must be invoked one event at a time per connection and in
// the order bytes were read. The returned remove functions are idempotent.
type Transport interface {
	Enumerate(ctx context.Context) ([]PortDescriptor, error)
	Open(ctx context.Context, path string, opts OpenOptions) (ConnectionID, error)
	Close(ctx context.Context, id ConnectionID) error
	Send(ctx context.Context, id ConnectionID, data []byte) (int, error)
	OnReceive(fn func(ReceiveEvent)) (remove func())
	OnReceiveError(fn func(ReceiveErrorEvent)) (remove func())
}

// Listeners is a registry of receive and error listeners for Transport
// implementations. The zero value is ready to use.
type Listeners struct {
	mu      sync.Mutex
	nextID  int
	receive map[int]func(ReceiveEvent)
	errs    map[int]func(ReceiveErrorEvent)
}

// OnReceive registers fn and returns a function that removes it
func (l *Listeners) OnReceive(fn func(ReceiveEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.receive == nil {
		l.receive = make(map[int]func(ReceiveEvent))
	}
	id := l.nextID
	l.nextID++
	l.receive[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.receive, id)
		l.mu.Unlock()
	}
}

// OnReceiveError registers fn and returns a function that removes it
func (l *Listeners) OnReceiveError(fn func(ReceiveErrorEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.errs == nil {
		l.errs = make(map[int]func(ReceiveErrorEvent))
	}
	id := l.nextID
	l.nextID++
	l.errs[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.errs, id)
		l.mu.Unlock()
	}
}

// DispatchReceive delivers ev to every receive listener. Listeners run outside
// the registry lock so they may remove themselves.
func (l *Listeners) DispatchReceive(ev ReceiveEvent) {
	l.mu.Lock()
	fns := make([]func(ReceiveEvent), 0, len(l.receive))
	for _, fn := range l.receive {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// DispatchError delivers ev to every error listener
func (l *Listeners) DispatchError(ev ReceiveErrorEvent) {
	l.mu.Lock()
	fns := make([]func(ReceiveErrorEvent), 0, len(l.errs))
	for _, fn := range l.errs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
