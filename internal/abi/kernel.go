package abi

import (
	"encoding/binary"
	"fmt"
)

// Capability flags advertised by a kernel at initialization. Unassigned bits
// are reserved for future contract extensions (online adaptation is bit 1,
// reserved but not yet specified).
type Capability uint32

const (
	// CapCalibrate indicates the kernel implements offline batch
	// calibration via the Calibrator interface.
	CapCalibrate Capability = 1 << iota

	// CapOnlineAdapt is reserved for future online adaptation support.
	CapOnlineAdapt
)

// InitResult is what a kernel declares when initialization succeeds. Once
// declared, the output shape never changes for the life of the instance.
type InitResult struct {
	OutputWindowLen int        // samples per output window per channel
	OutputChannels  int        // output channel count (may differ from input)
	Caps            Capability // advertised optional features
}

// Init result record layout (little-endian, append-only, same handshake
// discipline as the configuration record).
const (
	InitResultVersion = 1

	initResOffVersion  = 0
	initResOffSize     = 4
	initResOffWindow   = 8
	initResOffChannels = 12
	initResOffCaps     = 16
	initResSize        = 20
)

// Encode serializes r into its versioned record form.
func (r InitResult) Encode() []byte {
	buf := make([]byte, initResSize)
	binary.LittleEndian.PutUint32(buf[initResOffVersion:], InitResultVersion)
	binary.LittleEndian.PutUint32(buf[initResOffSize:], initResSize)
	binary.LittleEndian.PutUint32(buf[initResOffWindow:], uint32(r.OutputWindowLen))
	binary.LittleEndian.PutUint32(buf[initResOffChannels:], uint32(r.OutputChannels))
	binary.LittleEndian.PutUint32(buf[initResOffCaps:], uint32(r.Caps))
	return buf
}

// DecodeInitResult parses a versioned init result record, refusing version
// or size mismatches before reading any negotiated field.
func DecodeInitResult(data []byte) (InitResult, error) {
	if len(data) < 8 {
		return InitResult{}, fmt.Errorf("init result record too short for handshake: %d bytes", len(data))
	}
	version := binary.LittleEndian.Uint32(data[initResOffVersion:])
	size := binary.LittleEndian.Uint32(data[initResOffSize:])
	if version == 0 || version > InitResultVersion {
		return InitResult{}, fmt.Errorf("unsupported init result version %d (max %d)", version, InitResultVersion)
	}
	if int(size) < initResSize || int(size) > len(data) {
		return InitResult{}, fmt.Errorf("init result record declares %d bytes, have %d", size, len(data))
	}
	return InitResult{
		OutputWindowLen: int(binary.LittleEndian.Uint32(data[initResOffWindow:])),
		OutputChannels:  int(binary.LittleEndian.Uint32(data[initResOffChannels:])),
		Caps:            Capability(binary.LittleEndian.Uint32(data[initResOffCaps:])),
	}, nil
}

// Artifact is trained kernel state produced once by Calibrate and fed back
// into a later initialization through Config.Calibration. The version tag is
// kernel-defined; the harness treats the payload as opaque bytes.
type Artifact struct {
	Version uint32
	Payload []byte
}

// Kernel is the computation contract every plugin implements.
//
// Init negotiates the session; it may allocate and do unbounded (but
// deterministic) work. It must reject an element type it does not support
// and malformed Params by returning an error with a zero InitResult.
//
// Process transforms exactly one window. It runs on the hot path: no
// allocation, no blocking, no unbounded work. It must touch nothing except
// its own state and out; in and out are disjoint unless Config.AllowInPlace
// was set. Process has no error return — a kernel that hits an unrecoverable
// internal fault can only produce garbage, and that is a documented kernel
// responsibility, not something the harness detects (adding an error return
// would put a branch and interface header on the hot path).
//
// Close releases everything Init acquired.
type Kernel interface {
	Init(cfg *Config) (InitResult, error)
	Process(in, out []byte)
	Close() error
}

// Calibrator is the optional batch-calibration entry point, advertised by
// CapCalibrate. It is detected by type assertion — the loader's analogue of
// symbol resolution. Calibrate must be deterministic for a fixed input and
// must tolerate NaN samples without crashing.
type Calibrator interface {
	Calibrate(cfg *Config, windows [][]byte) (*Artifact, error)
}

// ErrClosed is returned when an Instance is used after Close.
var ErrClosed = fmt.Errorf("kernel instance closed")

// Instance is the single-owner handle around one initialized kernel. It
// enforces the lifecycle: Process cannot outlive Close, and Close cannot run
// twice against the same live instance.
type Instance struct {
	name   string
	kernel Kernel
	result InitResult
	closed bool
}

// NewInstance initializes k with cfg and wraps it in a lifecycle-enforcing
// handle. A kernel advertising CapCalibrate without implementing Calibrator
// is a contract violation and fails here, before any dispatch.
func NewInstance(name string, k Kernel, cfg *Config) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kernel %s: %w", name, err)
	}
	res, err := k.Init(cfg)
	if err != nil {
		return nil, fmt.Errorf("kernel %s init: %w", name, err)
	}
	if res.OutputWindowLen <= 0 || res.OutputChannels <= 0 {
		return nil, fmt.Errorf("kernel %s declared empty output shape %dx%d",
			name, res.OutputWindowLen, res.OutputChannels)
	}
	if res.Caps&CapCalibrate != 0 {
		if _, ok := k.(Calibrator); !ok {
			return nil, fmt.Errorf("kernel %s advertises calibration but does not implement it", name)
		}
	}
	return &Instance{name: name, kernel: k, result: res}, nil
}

// Name returns the identifier the instance was loaded under.
func (i *Instance) Name() string { return i.name }

// Result returns the shape and capabilities declared at initialization.
func (i *Instance) Result() InitResult { return i.result }

// OutputBytes returns the byte size of one output window for cfg's element
// type.
func (i *Instance) OutputBytes(cfg *Config) int {
	return i.result.OutputWindowLen * i.result.OutputChannels * cfg.DataType.Size()
}

// Process dispatches one window. Hot path: no allocation, no locking.
// Panics on lifecycle misuse (a closed instance), never on kernel math.
func (i *Instance) Process(in, out []byte) {
	if i.closed {
		panic("abi: Process called on closed instance " + i.name)
	}
	i.kernel.Process(in, out)
}

// Calibrate runs the optional batch-calibration entry point.
func (i *Instance) Calibrate(cfg *Config, windows [][]byte) (*Artifact, error) {
	if i.closed {
		return nil, ErrClosed
	}
	c, ok := i.kernel.(Calibrator)
	if !ok || i.result.Caps&CapCalibrate == 0 {
		return nil, fmt.Errorf("kernel %s does not support calibration", i.name)
	}
	return c.Calibrate(cfg, windows)
}

// Close tears the instance down. The second and later calls return ErrClosed
// without touching the kernel.
func (i *Instance) Close() error {
	if i.closed {
		return ErrClosed
	}
	i.closed = true
	return i.kernel.Close()
}
