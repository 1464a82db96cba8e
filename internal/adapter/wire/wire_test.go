package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStringEncoding(t *testing.T) {
	empty := ""
	// Empty string: zero-length prefix, no following bytes.
	buf := appendNullableString(nil, &empty)
	if !bytes.Equal(buf, []byte{0, 0, 0, 0}) {
		t.Errorf("empty string encoding = %v", buf)
	}
	s, ok, rest, err := readString(buf)
	if err != nil || !ok || s != "" || len(rest) != 0 {
		t.Errorf("empty string decode = %q ok=%v rest=%v err=%v; want empty, not null", s, ok, rest, err)
	}

	// Null string: all-ones length, no following bytes.
	buf = appendNullableString(nil, nil)
	if !bytes.Equal(buf, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("null string encoding = %v", buf)
	}
	if _, ok, _, err := readString(buf); err != nil || ok {
		t.Errorf("null string decode ok=%v err=%v, want null", ok, err)
	}

	// Regular string round-trip.
	buf = appendString(nil, "goertzel")
	s, ok, rest, err = readString(buf)
	if err != nil || !ok || s != "goertzel" || len(rest) != 0 {
		t.Errorf("string decode = %q ok=%v err=%v", s, ok, err)
	}

	// Length prefix overrunning the message must error before sizing.
	bad := binary.LittleEndian.AppendUint32(nil, 100)
	if _, _, _, err := readString(bad); err == nil {
		t.Error("overrunning string length accepted")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, MsgProcessWindow, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	msgType, payload, err := ReadFrame(&buf)
	if err != nil || msgType != MsgProcessWindow || !bytes.Equal(payload, []byte{1, 2, 3}) {
		t.Errorf("ReadFrame = %d %v %v", msgType, payload, err)
	}

	// Clean EOF on a frame boundary is not a transport error.
	if _, _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("ReadFrame on empty stream = %v, want io.EOF", err)
	}

	// Truncated payload is.
	buf.Reset()
	buf.Write([]byte{MsgResult, 10, 0, 0, 0, 1, 2})
	if _, _, err := ReadFrame(&buf); !errors.Is(err, ErrTransport) {
		t.Errorf("truncated frame = %v, want ErrTransport", err)
	}

	// Oversized declared length is rejected before allocation.
	buf.Reset()
	hdr := []byte{MsgResult, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(hdr[1:], maxFrameLen+1)
	buf.Write(hdr)
	if _, _, err := ReadFrame(&buf); !errors.Is(err, ErrTransport) {
		t.Errorf("oversized frame = %v, want ErrTransport", err)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	want := &Hello{
		DeviceID:    "fpga-07",
		Arch:        "riscv64",
		OS:          "baremetal",
		Caps:        3,
		Version:     ProtocolVersion,
		ClockFreqHz: 24_000_000,
		ClockSource: "cycle-counter",
	}
	got, err := DecodeHello(want.Encode())
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hello mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeHello(want.Encode()[:9]); err == nil {
		t.Error("truncated hello accepted")
	}
}

func TestLoadKernelXOR(t *testing.T) {
	path := "/opt/kernels/notch.so"
	id := "notch"

	both := &LoadKernel{KernelPath: &path, KernelID: &id, Config: []byte{1}}
	if _, err := both.Encode(); err == nil {
		t.Error("path and id both populated accepted")
	}
	neither := &LoadKernel{Config: []byte{1}}
	if _, err := neither.Encode(); err == nil {
		t.Error("neither path nor id accepted")
	}

	// Decode is structural only: a hand-built message with both strings
	// populated parses, and Validate flags the constraint violation so the
	// device can refuse the load without killing the session.
	buf := appendNullableString(nil, &path)
	buf = appendNullableString(buf, &id)
	buf = appendBlob(buf, []byte{1})
	buf = appendBlob(buf, nil)
	decoded, err := DecodeLoadKernel(buf)
	if err != nil {
		t.Fatalf("DecodeLoadKernel: %v", err)
	}
	if err := decoded.Validate(); err == nil {
		t.Error("load-kernel with both path and id validated")
	}

	one := &LoadKernel{KernelID: &id, Config: []byte{1, 2, 3}, Params: []byte{9}}
	payload, err := one.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeLoadKernel(payload)
	if err != nil {
		t.Fatalf("DecodeLoadKernel: %v", err)
	}
	if diff := cmp.Diff(one, got); diff != "" {
		t.Errorf("load-kernel mismatch (-want +got):\n%s", diff)
	}
}

func TestResultRoundTrip(t *testing.T) {
	want := &Result{Release: 100, Start: 110, End: 180, Deadline: 200, Output: []byte{5, 6, 7}}
	got, err := DecodeResult(want.Encode())
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	// Declared output count disagreeing with the bytes present is a
	// transport error, caught before the buffer is used.
	bad := want.Encode()
	binary.LittleEndian.PutUint32(bad, 99)
	if _, err := DecodeResult(bad); !errors.Is(err, ErrTransport) {
		t.Errorf("count mismatch = %v, want ErrTransport", err)
	}
	if _, err := DecodeResult(bad[:20]); !errors.Is(err, ErrTransport) {
		t.Errorf("truncated result = %v, want ErrTransport", err)
	}
}

func TestProcessWindowRoundTrip(t *testing.T) {
	want := &ProcessWindow{Release: StampOnArrival, Samples: []byte{1, 2, 3, 4}}
	got, err := DecodeProcessWindow(want.Encode())
	if err != nil {
		t.Fatalf("DecodeProcessWindow: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("process-window mismatch (-want +got):\n%s", diff)
	}
}
