package wire

import (
	"fmt"
	"io"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/adapter"
)

// Serve exposes a concrete adapter (typically adapter.Local on the target
// device) over a framed transport. It sends the Hello handshake, then
// services LoadKernel and ProcessWindow frames until the peer disconnects.
// A clean disconnect returns nil; a framing error returns ErrTransport.
func Serve(conn io.ReadWriter, a adapter.Adapter) error {
	ident := a.Identity()
	clock := a.Clock()
	hello := Hello{
		DeviceID:    ident.DeviceID,
		Arch:        ident.Arch,
		OS:          ident.OS,
		Caps:        a.Caps(),
		Version:     ProtocolVersion,
		ClockFreqHz: clock.FreqHz,
		ClockSource: clock.Source,
	}
	if err := WriteFrame(conn, MsgHello, hello.Encode()); err != nil {
		return err
	}

	for {
		msgType, payload, err := ReadFrame(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch msgType {
		case MsgLoadKernel:
			if err := serveLoad(conn, a, payload); err != nil {
				return err
			}
		case MsgProcessWindow:
			if err := serveProcess(conn, a, payload); err != nil {
				return err
			}
		default:
			return transportErr("unexpected message type %d", msgType)
		}
	}
}

func serveLoad(conn io.ReadWriter, a adapter.Adapter, payload []byte) error {
	msg, err := DecodeLoadKernel(payload)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		// Constraint violation: fatal for this load attempt, not for the
		// session. Reply with a null handle.
		Logf("wire: rejecting load-kernel: %v", err)
		return WriteFrame(conn, MsgResult, (&Result{}).Encode())
	}
	cfg, err := abi.DecodeConfig(msg.Config)
	if err != nil {
		// Handshake failure on the config record: fatal for this load
		// attempt, not for the session. Reply with a null handle.
		Logf("wire: rejecting load-kernel: %v", err)
		return WriteFrame(conn, MsgResult, (&Result{}).Encode())
	}
	if len(msg.Params) > 0 {
		cfg.Params = msg.Params
	}

	var path, id string
	if msg.KernelPath != nil {
		path = *msg.KernelPath
	}
	if msg.KernelID != nil {
		id = *msg.KernelID
	}
	res, err := a.LoadKernel(path, id, cfg)
	if err != nil {
		Logf("wire: kernel load failed: %v", err)
		return WriteFrame(conn, MsgResult, (&Result{}).Encode())
	}
	return WriteFrame(conn, MsgResult, encodeInitResult(res).Encode())
}

func serveProcess(conn io.ReadWriter, a adapter.Adapter, payload []byte) error {
	msg, err := DecodeProcessWindow(payload)
	if err != nil {
		return err
	}
	release := adapter.Timestamp(msg.Release)
	if msg.Release == StampOnArrival {
		release = a.Now()
	}
	res, err := a.ProcessWindow(msg.Samples, release)
	if err != nil {
		// No kernel loaded or the adapter is broken: the session cannot
		// produce trustworthy timing anymore.
		return fmt.Errorf("process window: %w", err)
	}
	reply := Result{
		Release:  int64(res.Release),
		Start:    int64(res.Start),
		End:      int64(res.End),
		Deadline: int64(res.Deadline),
		Output:   res.Output,
	}
	return WriteFrame(conn, MsgResult, reply.Encode())
}
