package wire

import (
	"fmt"
	"io"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/adapter"
)

// Remote proxies the adapter contract over a framed byte transport. It is
// the harness side of the protocol; the device side is Serve.
//
// Remote cannot sample the device's clock between messages, so Now returns
// the StampOnArrival sentinel: the device stamps each window's release time
// on arrival and every authoritative timestamp comes back in the Result.
// This keeps all four timestamps in the device's clock domain as the
// contract requires.
type Remote struct {
	conn     io.ReadWriteCloser
	hello    Hello
	poisoned bool

	out []byte // reusable output buffer, allocated at LoadKernel
	res adapter.Result
}

// Dial performs the protocol handshake: it reads the device's Hello and
// refuses a protocol version mismatch before anything else crosses the wire.
func Dial(conn io.ReadWriteCloser) (*Remote, error) {
	msgType, payload, err := ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if msgType != MsgHello {
		return nil, transportErr("expected hello, got message type %d", msgType)
	}
	h, err := DecodeHello(payload)
	if err != nil {
		return nil, err
	}
	if h.Version != ProtocolVersion {
		return nil, fmt.Errorf("device %s speaks protocol %d, harness speaks %d",
			h.DeviceID, h.Version, ProtocolVersion)
	}
	Logf("wire: connected to %s (%s/%s, clock %s)", h.DeviceID, h.Arch, h.OS, h.ClockSource)
	return &Remote{conn: conn, hello: *h}, nil
}

// Identity returns the device metadata from the handshake.
func (r *Remote) Identity() adapter.Identity {
	return adapter.Identity{DeviceID: r.hello.DeviceID, Arch: r.hello.Arch, OS: r.hello.OS}
}

// Clock describes the device's timestamp domain.
func (r *Remote) Clock() adapter.ClockInfo {
	return adapter.ClockInfo{FreqHz: r.hello.ClockFreqHz, Source: r.hello.ClockSource}
}

// Caps returns the capability bitmask the device advertised.
func (r *Remote) Caps() adapter.Caps { return r.hello.Caps }

// Now returns the stamp-on-arrival sentinel; see the type comment.
func (r *Remote) Now() adapter.Timestamp {
	return adapter.Timestamp(StampOnArrival)
}

// poison marks the session unusable and returns err. Once a framing error
// has occurred the connection's timing data is untrustworthy, so every later
// call fails fast.
func (r *Remote) poison(err error) error {
	r.poisoned = true
	return err
}

func (r *Remote) check() error {
	if r.poisoned {
		return transportErr("session poisoned by earlier transport error")
	}
	return nil
}

// LoadKernel sends the load request and decodes the init-result reply. The
// path-xor-id constraint is enforced before anything is written.
func (r *Remote) LoadKernel(path, id string, cfg *abi.Config) (abi.InitResult, error) {
	if err := r.check(); err != nil {
		return abi.InitResult{}, err
	}
	msg := LoadKernel{Config: cfg.Encode(), Params: cfg.Params}
	if path != "" {
		msg.KernelPath = &path
	}
	if id != "" {
		msg.KernelID = &id
	}
	payload, err := msg.Encode()
	if err != nil {
		return abi.InitResult{}, err // constraint violation, session still usable
	}
	if err := WriteFrame(r.conn, MsgLoadKernel, payload); err != nil {
		return abi.InitResult{}, r.poison(err)
	}

	reply, err := r.readResult()
	if err != nil {
		return abi.InitResult{}, r.poison(err)
	}
	if len(reply.Output) == 0 {
		// Null handle with zeroed outputs: fatal for this kernel only.
		return abi.InitResult{}, fmt.Errorf("device %s failed to initialize kernel", r.hello.DeviceID)
	}
	res, err := abi.DecodeInitResult(reply.Output)
	if err != nil {
		return abi.InitResult{}, r.poison(err)
	}
	r.out = make([]byte, 0, res.OutputWindowLen*res.OutputChannels*cfg.DataType.Size())
	return res, nil
}

// ProcessWindow ships one window to the device and copies the result into
// the session's reusable buffer before the next frame can overwrite it.
func (r *Remote) ProcessWindow(input []byte, release adapter.Timestamp) (*adapter.Result, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	msg := ProcessWindow{Release: int64(release), Samples: input}
	if err := WriteFrame(r.conn, MsgProcessWindow, msg.Encode()); err != nil {
		return nil, r.poison(err)
	}
	reply, err := r.readResult()
	if err != nil {
		return nil, r.poison(err)
	}
	if len(reply.Output) > cap(r.out) {
		return nil, r.poison(transportErr("result of %d bytes exceeds negotiated output size %d",
			len(reply.Output), cap(r.out)))
	}
	r.out = r.out[:len(reply.Output)]
	copy(r.out, reply.Output)
	r.res = adapter.Result{
		Output:   r.out,
		Release:  adapter.Timestamp(reply.Release),
		Start:    adapter.Timestamp(reply.Start),
		End:      adapter.Timestamp(reply.End),
		Deadline: adapter.Timestamp(reply.Deadline),
	}
	return &r.res, nil
}

func (r *Remote) readResult() (*Result, error) {
	msgType, payload, err := ReadFrame(r.conn)
	if err != nil {
		if err == io.EOF {
			return nil, transportErr("connection closed mid-session")
		}
		return nil, err
	}
	if msgType != MsgResult {
		return nil, transportErr("expected result, got message type %d", msgType)
	}
	return DecodeResult(payload)
}

// Close shuts the transport down.
func (r *Remote) Close() error {
	r.poisoned = true
	return r.conn.Close()
}
