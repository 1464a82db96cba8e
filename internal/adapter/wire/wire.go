// Package wire implements the remote-adapter protocol: four framed message
// types (Hello, LoadKernel, ProcessWindow, Result) carried over any ordered
// byte transport. The framing is byte-exact where interoperability matters;
// every length prefix is validated before any buffer is sized from it, and a
// malformed or truncated message poisons the session because timing data
// from a broken transport is no longer trustworthy.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
)

// Logf is the package-level diagnostic logger, redirectable for tests.
var Logf func(format string, v ...interface{}) = log.Printf

// ProtocolVersion is the wire protocol revision this harness speaks.
const ProtocolVersion uint32 = 1

// Message types. One byte on the wire, followed by a little-endian uint32
// payload length and the payload itself.
const (
	MsgHello         byte = 1 // adapter -> harness
	MsgLoadKernel    byte = 2 // harness -> adapter
	MsgProcessWindow byte = 3 // harness -> adapter
	MsgResult        byte = 4 // adapter -> harness
)

const (
	frameHeaderSize = 5
	// maxFrameLen bounds payload allocation. Large enough for any window a
	// benchmark realistically streams, small enough that a corrupt length
	// prefix cannot exhaust memory.
	maxFrameLen = 256 << 20

	// nullString denotes a logical null (absent) string on the wire; a
	// zero length denotes an empty string.
	nullString = ^uint32(0)

	// StampOnArrival in a ProcessWindow timestamp field asks the adapter
	// to stamp the window's release time when the message arrives.
	StampOnArrival int64 = -1
)

// ErrTransport wraps any framing-level failure. A session that returns it is
// invalid for further timing use.
var ErrTransport = fmt.Errorf("wire: transport error")

func transportErr(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, v...))
}

// WriteFrame writes one framed message.
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	if len(payload) > maxFrameLen {
		return transportErr("payload of %d bytes exceeds frame limit", len(payload))
	}
	var hdr [frameHeaderSize]byte
	hdr[0] = msgType
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return transportErr("write frame header: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		return transportErr("write frame payload: %v", err)
	}
	return nil
}

// ReadFrame reads one framed message, validating the length prefix before
// allocating. io.EOF on a clean frame boundary is returned as-is so callers
// can distinguish shutdown from truncation.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, transportErr("read frame header: %v", err)
	}
	n := binary.LittleEndian.Uint32(hdr[1:])
	if n > maxFrameLen {
		return 0, nil, transportErr("frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, transportErr("read frame payload: %v", err)
	}
	return hdr[0], payload, nil
}

// appendString appends the wire encoding of s: a 4-byte length prefix
// followed by raw bytes with no terminator.
func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// appendNullableString appends s, encoding absence as the all-ones length.
func appendNullableString(buf []byte, s *string) []byte {
	if s == nil {
		return binary.LittleEndian.AppendUint32(buf, nullString)
	}
	return appendString(buf, *s)
}

// readString decodes a length-prefixed string, returning the remaining
// bytes. A null sentinel yields ok=false; an empty string yields ok=true
// with s == "".
func readString(buf []byte) (s string, ok bool, rest []byte, err error) {
	if len(buf) < 4 {
		return "", false, nil, transportErr("truncated string length prefix")
	}
	n := binary.LittleEndian.Uint32(buf)
	rest = buf[4:]
	if n == nullString {
		return "", false, rest, nil
	}
	if n > maxFrameLen || int(n) > len(rest) {
		return "", false, nil, transportErr("string of %d bytes overruns message", n)
	}
	return string(rest[:n]), true, rest[n:], nil
}

// appendBlob appends a length-prefixed byte blob (never null; zero length is
// an empty blob).
func appendBlob(buf, blob []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(blob)))
	return append(buf, blob...)
}

func readBlob(buf []byte) (blob, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, transportErr("truncated blob length prefix")
	}
	n := binary.LittleEndian.Uint32(buf)
	rest = buf[4:]
	if n > maxFrameLen || int(n) > len(rest) {
		return nil, nil, transportErr("blob of %d bytes overruns message", n)
	}
	return rest[:n], rest[n:], nil
}
