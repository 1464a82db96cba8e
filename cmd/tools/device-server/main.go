// Command device-server exposes the local adapter over the wire protocol,
// turning this host into an execution target for a remote harness. Useful
// for protocol testing on the bench before flashing an embedded build.
//
// Usage:
//
//	go run ./cmd/tools/device-server -listen localhost:9301
//	go run ./cmd/tools/device-server -serial /dev/ttyUSB0 -baud 115200
package main

import (
	"flag"
	"log"
	"net"

	"github.com/cortex-data/cortex/internal/adapter"
	"github.com/cortex-data/cortex/internal/adapter/wire"
	_ "github.com/cortex-data/cortex/internal/kernels"
)

var (
	listenAddr = flag.String("listen", "", "TCP listen address, e.g. localhost:9301")
	serialDev  = flag.String("serial", "", "serial device to serve on instead of TCP")
	baud       = flag.Int("baud", 115200, "serial baud rate")
)

func main() {
	flag.Parse()
	if (*listenAddr == "") == (*serialDev == "") {
		log.Fatal("exactly one of -listen and -serial is required")
	}

	if *serialDev != "" {
		port, err := wire.OpenSerial(*serialDev, *baud)
		if err != nil {
			log.Fatalf("serial: %v", err)
		}
		defer port.Close()
		log.Printf("serving on %s at %d baud", *serialDev, *baud)
		if err := wire.Serve(port, adapter.NewLocal()); err != nil {
			log.Fatalf("serve: %v", err)
		}
		return
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	log.Printf("listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}
		log.Printf("session from %s", conn.RemoteAddr())
		// One session at a time: a device has one kernel slot and one
		// clock, so concurrent harnesses would corrupt each other.
		if err := wire.Serve(conn, adapter.NewLocal()); err != nil {
			log.Printf("session ended: %v", err)
		}
		conn.Close()
	}
}
