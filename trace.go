package serialdevice

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TraceLogger accumulates a bounded hex trace of serial traffic.
//
// Lines are counted on embedded newlines. Once the limit is reached further
// writes are dropped until Emit(true) clears the log. Flushes to the sink are
// debounced: every write restarts the window and only the text added since the
// previous flush is emitted when it expires.
type TraceLogger struct {
	mu       sync.Mutex
	sink     zerolog.Logger
	enabled  bool
	limit    int
	debounce time.Duration
	text     strings.Builder
	lines    int
	flushed  int
	timer    *time.Timer
	closed   bool
}

// NewTraceLogger creates a trace logger writing to sink
func NewTraceLogger(sink zerolog.Logger, enabled bool, limit int, debounce time.Duration) *TraceLogger {
	return &TraceLogger{
		sink:     sink,
		enabled:  enabled,
		limit:    limit,
		debounce: debounce,
	}
}

// Write appends s to the trace. Each newline in s counts as a line; text
// past the line limit is dropped.
func (t *TraceLogger) Write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled || t.closed {
		return
	}
	for s != "" && t.lines < t.limit {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			t.text.WriteString(s)
			break
		}
		t.text.WriteString(s[:i+1])
		t.lines++
		s = s[i+1:]
	}
	t.scheduleLocked()
}

// Writef is Write with formatting
func (t *TraceLogger) Writef(format string, args ...any) {
	t.Write(fmt.Sprintf(format, args...))
}

// Dump traces p as space separated hex bytes behind a direction tag
func (t *TraceLogger) Dump(tag string, p []byte) {
	var sb strings.Builder
	sb.Grow(len(tag) + 1 + len(p)*3 + 1)
	sb.WriteString(tag)
	sb.WriteByte(' ')
	for _, b := range p {
		fmt.Fprintf(&sb, "%02x ", b)
	}
	sb.WriteByte('\n')
	t.Write(sb.String())
}

func (t *TraceLogger) scheduleLocked() {
	if t.debounce <= 0 {
		t.flushLocked()
		return
	}
	if t.timer == nil {
		t.timer = time.AfterFunc(t.debounce, t.flush)
		return
	}
	t.timer.Reset(t.debounce)
}

func (t *TraceLogger) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
}

func (t *TraceLogger) flushLocked() {
	text := t.text.String()
	if t.flushed >= len(text) {
		return
	}
	pending := text[t.flushed:]
	t.flushed = len(text)
	t.sink.Debug().Str("trace", pending).Msg("serial trace")
}

// Emit writes the whole accumulated trace to the sink immediately and
// optionally clears it
func (t *TraceLogger) Emit(clear bool) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	text := t.text.String()
	if clear {
		t.text.Reset()
		t.lines = 0
		t.flushed = 0
	} else {
		t.flushed = len(text)
	}
	t.mu.Unlock()

	if text != "" {
		t.sink.Info().Int("bytes", len(text)).Str("trace", text).Msg("serial trace")
	}
}

// String returns the accumulated trace text
func (t *TraceLogger) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text.String()
}

// Lines returns the number of lines currently held
func (t *TraceLogger) Lines() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lines
}

// Enabled reports whether writes are recorded
func (t *TraceLogger) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Close stops any pending flush. Later writes are ignored.
func (t *TraceLogger) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
	}
}
