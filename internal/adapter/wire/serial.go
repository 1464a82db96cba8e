package wire

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens a serial link to an embedded target for use with Dial or
// Serve. 8N1 framing; the protocol's own length prefixes handle message
// boundaries, so no line discipline is layered on top.
func OpenSerial(device string, baud int) (serial.Port, error) {
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial device %s: %w", device, err)
	}
	return port, nil
}
