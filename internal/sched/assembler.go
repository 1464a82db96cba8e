// Package sched turns a paced stream of hop-sized sample chunks into
// deadline-tracked kernel invocations, recording one telemetry record per
// dispatched window.
package sched

import (
	"fmt"

	"github.com/cortex-data/cortex/internal/abi"
)

// Assembler maintains the sliding window buffer. Each pushed hop chunk
// shifts the window left by one hop and appends the new samples; once the
// window has filled, every push yields a complete window.
type Assembler struct {
	window   []byte
	hopBytes int
	filled   int
}

// NewAssembler sizes the sliding buffer for cfg's window geometry.
func NewAssembler(cfg *abi.Config) (*Assembler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sched: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Assembler{
		window:   make([]byte, cfg.WindowBytes()),
		hopBytes: cfg.HopBytes(),
	}, nil
}

// Push slides one hop chunk into the window. The returned slice aliases the
// assembler's buffer and is valid until the next Push; ready is true once
// the window contains a full window's worth of samples.
func (a *Assembler) Push(chunk []byte) (window []byte, ready bool) {
	if len(chunk) != a.hopBytes {
		panic(fmt.Sprintf("sched: chunk size %d, assembler expects %d", len(chunk), a.hopBytes))
	}
	copy(a.window, a.window[a.hopBytes:])
	copy(a.window[len(a.window)-a.hopBytes:], chunk)
	if a.filled < len(a.window) {
		a.filled += a.hopBytes
	}
	return a.window, a.filled >= len(a.window)
}
