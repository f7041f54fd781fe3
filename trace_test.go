package serialdevice

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the debounce timer goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

type logEntry struct {
	Level string `json:"level"`
	Trace string `json:"trace"`
}

func (s *syncBuffer) entries() []logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []logEntry
	for _, line := range strings.Split(strings.TrimSpace(s.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

func TestTraceDumpFormat(t *testing.T) {
	tl := NewTraceLogger(zerolog.Nop(), true, 10, 0)
	tl.Dump("  rcv", []byte{0x00, 0x1f, 0xff})
	tl.Dump(" xmit", nil)
	assert.Equal(t, "  rcv 00 1f ff \n xmit \n", tl.String())
	assert.Equal(t, 2, tl.Lines())
}

func TestTraceLineLimit(t *testing.T) {
	tl := NewTraceLogger(zerolog.Nop(), true, 3, 0)
	for i := 0; i < 10; i++ {
		tl.Writef("line %d\n", i)
		assert.LessOrEqual(t, tl.Lines(), 3)
	}
	assert.Equal(t, "line 0\nline 1\nline 2\n", tl.String())

	tl.Emit(true)
	assert.Zero(t, tl.Lines())
	tl.Write("again\n")
	assert.Equal(t, "again\n", tl.String())
}

func TestTraceMultiLineWrite(t *testing.T) {
	tl := NewTraceLogger(zerolog.Nop(), true, 3, 0)
	tl.Write("a\nb\n")
	assert.Equal(t, 2, tl.Lines())

	tl.Write("c\nd\ne\n")
	assert.Equal(t, 3, tl.Lines())
	assert.Equal(t, "a\nb\nc\n", tl.String())

	tl.Write("tail")
	assert.Equal(t, "a\nb\nc\n", tl.String())
}

func TestTraceDisabled(t *testing.T) {
	tl := NewTraceLogger(zerolog.Nop(), false, 10, 0)
	tl.Write("x\n")
	assert.Empty(t, tl.String())
	assert.False(t, tl.Enabled())
}

func TestTraceDebounceEmitsOnlyNewText(t *testing.T) {
	out := &syncBuffer{}
	tl := NewTraceLogger(zerolog.New(out).Level(zerolog.DebugLevel), true, 100, 30*time.Millisecond)
	defer tl.Close()

	tl.Write("a\n")
	tl.Write("b\n")
	assert.Empty(t, out.entries())

	require.Eventually(t, func() bool { return len(out.entries()) == 1 }, time.Second, 5*time.Millisecond)
	tl.Write("c\n")
	require.Eventually(t, func() bool { return len(out.entries()) == 2 }, time.Second, 5*time.Millisecond)

	entries := out.entries()
	assert.Equal(t, "debug", entries[0].Level)
	assert.Equal(t, "a\nb\n", entries[0].Trace)
	assert.Equal(t, "c\n", entries[1].Trace)
}

func TestTraceEmit(t *testing.T) {
	out := &syncBuffer{}
	tl := NewTraceLogger(zerolog.New(out), true, 100, time.Hour)
	defer tl.Close()

	tl.Write("one\n")
	tl.Emit(false)
	tl.Write("two\n")
	tl.Emit(true)
	tl.Emit(true)

	entries := out.entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "one\n", entries[0].Trace)
	assert.Equal(t, "one\ntwo\n", entries[1].Trace)
	assert.Empty(t, tl.String())
}

func TestTraceCloseStopsWrites(t *testing.T) {
	tl := NewTraceLogger(zerolog.Nop(), true, 10, time.Hour)
	tl.Write("x\n")
	tl.Close()
	tl.Write("y\n")
	assert.Equal(t, "x\n", tl.String())
}

func TestControllerTraceNeverExceedsLimit(t *testing.T) {
	tr := newFakeTransport("/dev/ttyUSB0")
	c := newTestController(t, tr, WithTraceLineLimit(5))
	conn := connected(t, c, nil)

	for i := 0; i < 50; i++ {
		tr.Deliver(conn.ID, []byte{byte(i)})
		assert.LessOrEqual(t, c.Trace().Lines(), 5)
	}
	c.EmitLog(true)
	assert.Zero(t, c.Trace().Lines())
}
