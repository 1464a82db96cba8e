package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/adapter"
)

// Hello is the first message on every connection, adapter to harness.
type Hello struct {
	DeviceID    string
	Arch        string
	OS          string
	Caps        adapter.Caps
	Version     uint32
	ClockFreqHz uint64 // zero means nanosecond timestamps
	ClockSource string
}

// Encode serializes h into a MsgHello payload.
func (h *Hello) Encode() []byte {
	buf := appendString(nil, h.DeviceID)
	buf = appendString(buf, h.Arch)
	buf = appendString(buf, h.OS)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Caps))
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = binary.LittleEndian.AppendUint64(buf, h.ClockFreqHz)
	buf = appendString(buf, h.ClockSource)
	return buf
}

// DecodeHello parses a MsgHello payload.
func DecodeHello(buf []byte) (*Hello, error) {
	var h Hello
	var err error
	if h.DeviceID, _, buf, err = readString(buf); err != nil {
		return nil, err
	}
	if h.Arch, _, buf, err = readString(buf); err != nil {
		return nil, err
	}
	if h.OS, _, buf, err = readString(buf); err != nil {
		return nil, err
	}
	if len(buf) < 16 {
		return nil, transportErr("hello message truncated")
	}
	h.Caps = adapter.Caps(binary.LittleEndian.Uint32(buf))
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	h.ClockFreqHz = binary.LittleEndian.Uint64(buf[8:])
	buf = buf[16:]
	if h.ClockSource, _, _, err = readString(buf); err != nil {
		return nil, err
	}
	return &h, nil
}

// LoadKernel asks the adapter to resolve and initialize a kernel. Exactly
// one of KernelPath or KernelID must be non-nil; both or neither is rejected
// before any load attempt on either side of the wire.
type LoadKernel struct {
	KernelPath *string
	KernelID   *string
	Config     []byte // versioned runtime configuration record
	Params     []byte // opaque kernel parameter blob (overrides the record's)
}

// Validate enforces the path-xor-id constraint.
func (m *LoadKernel) Validate() error {
	if (m.KernelPath == nil) == (m.KernelID == nil) {
		return fmt.Errorf("load-kernel requires exactly one of kernel path or kernel id")
	}
	return nil
}

// Encode serializes m into a MsgLoadKernel payload.
func (m *LoadKernel) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := appendNullableString(nil, m.KernelPath)
	buf = appendNullableString(buf, m.KernelID)
	buf = appendBlob(buf, m.Config)
	buf = appendBlob(buf, m.Params)
	return buf, nil
}

// DecodeLoadKernel parses a MsgLoadKernel payload. Structural errors only;
// the path-xor-id constraint is checked separately via Validate, so a device
// can refuse the load without tearing the session down.
func DecodeLoadKernel(buf []byte) (*LoadKernel, error) {
	var m LoadKernel
	path, ok, buf, err := readString(buf)
	if err != nil {
		return nil, err
	}
	if ok {
		m.KernelPath = &path
	}
	id, ok, buf, err := readString(buf)
	if err != nil {
		return nil, err
	}
	if ok {
		m.KernelID = &id
	}
	if m.Config, buf, err = readBlob(buf); err != nil {
		return nil, err
	}
	if m.Params, _, err = readBlob(buf); err != nil {
		return nil, err
	}
	return &m, nil
}

// ProcessWindow carries one input window to the adapter. Release is a
// timestamp in the adapter's clock domain, or StampOnArrival to have the
// adapter stamp the arrival time itself. Samples are the raw window bytes.
type ProcessWindow struct {
	Release int64
	Samples []byte
}

// Encode serializes m into a MsgProcessWindow payload.
func (m *ProcessWindow) Encode() []byte {
	buf := make([]byte, 8, 8+len(m.Samples))
	binary.LittleEndian.PutUint64(buf, uint64(m.Release))
	return append(buf, m.Samples...)
}

// DecodeProcessWindow parses a MsgProcessWindow payload. The sample bytes
// alias the payload.
func DecodeProcessWindow(buf []byte) (*ProcessWindow, error) {
	if len(buf) < 8 {
		return nil, transportErr("process-window message truncated")
	}
	return &ProcessWindow{
		Release: int64(binary.LittleEndian.Uint64(buf)),
		Samples: buf[8:],
	}, nil
}

// Result carries one invocation's outcome back to the harness: the output
// byte count, the four timestamps, then the raw output bytes.
//
// A Result is also the reply to LoadKernel: its timestamps are zero and its
// Output holds the encoded init-result record, or is empty to report a
// null-handle initialization failure.
type Result struct {
	Release  int64
	Start    int64
	End      int64
	Deadline int64
	Output   []byte
}

// Encode serializes m into a MsgResult payload.
func (m *Result) Encode() []byte {
	buf := make([]byte, 36, 36+len(m.Output))
	binary.LittleEndian.PutUint32(buf, uint32(len(m.Output)))
	binary.LittleEndian.PutUint64(buf[4:], uint64(m.Release))
	binary.LittleEndian.PutUint64(buf[12:], uint64(m.Start))
	binary.LittleEndian.PutUint64(buf[20:], uint64(m.End))
	binary.LittleEndian.PutUint64(buf[28:], uint64(m.Deadline))
	return append(buf, m.Output...)
}

// DecodeResult parses a MsgResult payload, checking the declared output
// count against the bytes actually present before any use.
func DecodeResult(buf []byte) (*Result, error) {
	if len(buf) < 36 {
		return nil, transportErr("result message truncated")
	}
	n := binary.LittleEndian.Uint32(buf)
	if n > maxFrameLen || int(n) != len(buf)-36 {
		return nil, transportErr("result declares %d output bytes, %d present", n, len(buf)-36)
	}
	return &Result{
		Release:  int64(binary.LittleEndian.Uint64(buf[4:])),
		Start:    int64(binary.LittleEndian.Uint64(buf[12:])),
		End:      int64(binary.LittleEndian.Uint64(buf[20:])),
		Deadline: int64(binary.LittleEndian.Uint64(buf[28:])),
		Output:   buf[36:],
	}, nil
}

// encodeInitResult builds the LoadKernel success reply.
func encodeInitResult(res abi.InitResult) *Result {
	return &Result{Output: res.Encode()}
}
