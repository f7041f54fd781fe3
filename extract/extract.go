// Package extract provides generic framers that satisfy serialdevice.Extractor.
//
// Each framer only discards bytes when it returns a packet, so an unchanged
// buffer always yields the same answer. Packets are []byte copies.
package extract

import (
	"bytes"

	"github.com/allbin/serialdevice"
)

// FixedLength yields packets of exactly n bytes
func FixedLength(n int) serialdevice.Extractor {
	return serialdevice.ExtractorFunc(func(buf serialdevice.BufferView) (serialdevice.Packet, bool) {
		if n <= 0 || buf.Len() < n {
			return nil, false
		}
		pkt := make([]byte, n)
		for i := range pkt {
			pkt[i] = buf.Get(i)
		}
		buf.Discard(n)
		return pkt, true
	})
}

// Delimited yields the bytes before each occurrence of delim. The delimiter is
// consumed but not included in the packet.
func Delimited(delim []byte) serialdevice.Extractor {
	d := append([]byte(nil), delim...)
	return serialdevice.ExtractorFunc(func(buf serialdevice.BufferView) (serialdevice.Packet, bool) {
		if len(d) == 0 {
			return nil, false
		}
		data := buf.Bytes()
		i := bytes.Index(data, d)
		if i < 0 {
			return nil, false
		}
		pkt := data[:i:i]
		buf.Discard(i + len(d))
		return append([]byte(nil), pkt...), true
	})
}

// Lines is Delimited on '\n' with a trailing '\r' trimmed
func Lines() serialdevice.Extractor {
	inner := Delimited([]byte{'\n'})
	return serialdevice.ExtractorFunc(func(buf serialdevice.BufferView) (serialdevice.Packet, bool) {
		pkt, ok := inner.TryExtract(buf)
		if !ok {
			return nil, false
		}
		return bytes.TrimSuffix(pkt.([]byte), []byte{'\r'}), true
	})
}

// Framed yields the bytes between a start and an end marker, markers
// excluded. Bytes ahead of the start marker are dropped together with the
// frame that follows them.
func Framed(start, end byte) serialdevice.Extractor {
	return serialdevice.ExtractorFunc(func(buf serialdevice.BufferView) (serialdevice.Packet, bool) {
		data := buf.Bytes()
		s := bytes.IndexByte(data, start)
		if s < 0 {
			return nil, false
		}
		e := bytes.IndexByte(data[s+1:], end)
		if e < 0 {
			return nil, false
		}
		e += s + 1
		pkt := append([]byte(nil), data[s+1:e]...)
		buf.Discard(e + 1)
		return pkt, true
	})
}

// LengthPrefixed yields frames whose first byte is the payload length. The
// packet holds the payload only.
func LengthPrefixed() serialdevice.Extractor {
	return serialdevice.ExtractorFunc(func(buf serialdevice.BufferView) (serialdevice.Packet, bool) {
		if buf.Len() < 1 {
			return nil, false
		}
		n := int(buf.Get(0))
		if buf.Len() < n+1 {
			return nil, false
		}
		pkt := make([]byte, n)
		for i := range pkt {
			pkt[i] = buf.Get(i + 1)
		}
		buf.Discard(n + 1)
		return pkt, true
	})
}
