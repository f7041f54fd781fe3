package serialdevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteBuffer(t *testing.T) {
	var b ByteBuffer
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Get(0))

	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4})
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, byte(3), b.Get(2))
	assert.Zero(t, b.Get(4))
	assert.Zero(t, b.Get(-1))

	assert.Equal(t, 1, b.Discard(1))
	assert.Equal(t, []byte{2, 3, 4}, b.Bytes())

	assert.Equal(t, []byte{2, 3}, b.Take(2))
	assert.Equal(t, []byte{4}, b.Take(10))
	assert.Equal(t, []byte{}, b.Take(1))
	assert.Zero(t, b.Len())
}

func TestByteBufferDiscardBounds(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		dropped int
		left    int
	}{
		{"negative", -3, 0, 3},
		{"zero", 0, 0, 3},
		{"partial", 2, 2, 1},
		{"exact", 3, 3, 0},
		{"overshoot", 9, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ByteBuffer
			b.Append([]byte{1, 2, 3})
			assert.Equal(t, tt.dropped, b.Discard(tt.n))
			assert.Equal(t, tt.left, b.Len())
		})
	}
}

func TestByteBufferBytesIsCopy(t *testing.T) {
	var b ByteBuffer
	b.Append([]byte{1, 2})
	out := b.Bytes()
	out[0] = 9
	assert.Equal(t, byte(1), b.Get(0))

	in := []byte{5}
	b.Reset()
	b.Append(in)
	in[0] = 6
	assert.Equal(t, byte(5), b.Get(0))
}

func TestPacketQueueFIFO(t *testing.T) {
	var q PacketQueue
	_, ok := q.Peek()
	assert.False(t, ok)
	_, ok = q.Next()
	assert.False(t, ok)

	q.Push("a")
	q.Push("b")
	q.Push("c")
	assert.Equal(t, 3, q.Len())

	p, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "a", p)
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		p, ok := q.Next()
		assert.True(t, ok)
		assert.Equal(t, want, p)
	}
	assert.Zero(t, q.Len())

	q.Push(1)
	q.Clear()
	assert.Zero(t, q.Len())
}
