package serialdevice

// Packet is an extractor-defined value. The core never inspects it.
type Packet any

// BufferView is what an Extractor sees of the receive buffer
type BufferView interface {
	Get(i int) byte
	Len() int
	Discard(n int)
	Bytes() []byte
}

// Extractor turns buffered bytes into packets.
//
// TryExtract either discards the bytes making up one packet and returns it, or
// returns false without side effects. With an unchanged buffer it must keep
// returning false.
type Extractor interface {
	TryExtract(buf BufferView) (Packet, bool)
}

// ExtractorFunc adapts a function to the Extractor interface
type ExtractorFunc func(buf BufferView) (Packet, bool)

// TryExtract calls f(buf)
func (f ExtractorFunc) TryExtract(buf BufferView) (Packet, bool) {
	return f(buf)
}

// ByteBuffer is an append-only byte sequence that is consumed from the front
type ByteBuffer struct {
	data []byte
}

// Append adds p to the end of the buffer
func (b *ByteBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Get returns the byte at offset i, or 0 when i is out of range
func (b *ByteBuffer) Get(i int) byte {
	if i < 0 || i >= len(b.data) {
		return 0
	}
	return b.data[i]
}

// Len returns the number of buffered bytes
func (b *ByteBuffer) Len() int {
	return len(b.data)
}

// Discard drops up to n bytes from the front and returns how many were dropped
func (b *ByteBuffer) Discard(n int) int {
	if n <= 0 {
		return 0
	}
	if n >= len(b.data) {
		n = len(b.data)
		b.Reset()
		return n
	}
	b.data = b.data[n:]
	return n
}

// Take removes up to n bytes from the front and returns them
func (b *ByteBuffer) Take(n int) []byte {
	if n > len(b.data) {
		n = len(b.data)
	}
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, b.data)
	b.Discard(n)
	return out
}

// Bytes returns a copy of the buffered bytes
func (b *ByteBuffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Reset empties the buffer and releases its storage
func (b *ByteBuffer) Reset() {
	b.data = nil
}

// PacketQueue is a FIFO of extracted packets
type PacketQueue struct {
	items []Packet
}

// Push appends p to the tail
func (q *PacketQueue) Push(p Packet) {
	q.items = append(q.items, p)
}

// Len returns the number of queued packets
func (q *PacketQueue) Len() int {
	return len(q.items)
}

// Peek returns the head packet without removing it
func (q *PacketQueue) Peek() (Packet, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Next removes and returns the head packet
func (q *PacketQueue) Next() (Packet, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return p, true
}

// Clear drops every queued packet
func (q *PacketQueue) Clear() {
	q.items = nil
}
