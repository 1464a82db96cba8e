// Package adapter abstracts "produce a timestamp" and "run one window" so a
// kernel can execute on the local host or be proxied to a remote or embedded
// target indistinguishably.
package adapter

import (
	"github.com/cortex-data/cortex/internal/abi"
)

// Timestamp is a raw clock value in the owning adapter's clock domain.
// Interpret it through the adapter's ClockInfo.
type Timestamp int64

// ClockInfo describes how to interpret an adapter's timestamps. FreqHz of
// zero means timestamps are nanoseconds; a nonzero value is the tick
// frequency of a counter clock (e.g. a cycle counter on an embedded target).
type ClockInfo struct {
	FreqHz uint64
	Source string // human-readable clock-source label
}

// ToNanos converts a raw timestamp to nanoseconds. Counter clocks are split
// into whole seconds and remainder to avoid overflowing the multiplication.
func (ci ClockInfo) ToNanos(t Timestamp) int64 {
	if ci.FreqHz == 0 {
		return int64(t)
	}
	f := int64(ci.FreqHz)
	return (int64(t)/f)*1e9 + (int64(t)%f)*1e9/f
}

// TicksFor converts a nanosecond duration into raw clock ticks.
func (ci ClockInfo) TicksFor(nanos int64) Timestamp {
	if ci.FreqHz == 0 {
		return Timestamp(nanos)
	}
	f := int64(ci.FreqHz)
	return Timestamp((nanos/1e9)*f + (nanos%1e9)*f/1e9)
}

// Identity is advisory metadata describing a hardware target.
type Identity struct {
	DeviceID string
	Arch     string
	OS       string
}

// Caps is the capability bitmask an adapter advertises. An optional hook is
// usable only when its bit is set and the adapter implements the matching
// interface; the As* helpers enforce both.
type Caps uint32

const (
	CapFreqControl Caps = 1 << iota
	CapPerfCounters
	CapRTPriority
	CapThermal
)

// Result is the outcome of one window invocation. Output aliases the
// adapter's single reusable buffer: it stays valid only until the next
// ProcessWindow call or Close, so callers must copy it out first.
type Result struct {
	Output   []byte
	Release  Timestamp
	Start    Timestamp
	End      Timestamp
	Deadline Timestamp
}

// Adapter is a hardware target capable of running one kernel at a time.
// Every timestamp in a session must originate from the same adapter's Now;
// mixing clock domains invalidates relative-latency comparisons and is a
// configuration error.
type Adapter interface {
	// Identity returns advisory device metadata.
	Identity() Identity

	// Clock describes the adapter's timestamp domain.
	Clock() ClockInfo

	// Caps returns the optional-feature bitmask.
	Caps() Caps

	// Now samples the adapter's clock.
	Now() Timestamp

	// LoadKernel resolves and initializes exactly one of a kernel path or
	// registry id (never both or neither) under cfg. It allocates the
	// reusable result buffer; nothing after it may allocate per window.
	LoadKernel(path, id string, cfg *abi.Config) (abi.InitResult, error)

	// ProcessWindow runs one window through the loaded kernel, stamping
	// start and end from this adapter's clock and deadline as release plus
	// the nominal hop period.
	ProcessWindow(input []byte, release Timestamp) (*Result, error)

	// Close tears down the loaded kernel and releases the connection or
	// buffers the adapter holds.
	Close() error
}

// Counters is one performance-counter snapshot. Values are meaningful only
// as differences between two snapshots taken on the same adapter.
type Counters struct {
	Instructions uint64
	Cycles       uint64
	CacheMisses  uint64
	Branches     uint64
	BranchMisses uint64
}

// FreqController is the optional frequency/governor control hook.
type FreqController interface {
	SetFrequencyHz(hz uint64) error
}

// PerfCounterSource is the optional performance-counter hook.
type PerfCounterSource interface {
	CounterSnapshot() (Counters, error)
}

// RTPrioritizer is the optional real-time priority request hook.
type RTPrioritizer interface {
	RequestRTPriority(class string, priority int, affinity uint64) error
}

// ThermalSensor is the optional thermal read hook.
type ThermalSensor interface {
	ThermalMilliC() (int64, error)
}

// AsFreqController returns the frequency hook if the capability bit is set
// and the adapter implements it.
func AsFreqController(a Adapter) (FreqController, bool) {
	if a.Caps()&CapFreqControl == 0 {
		return nil, false
	}
	h, ok := a.(FreqController)
	return h, ok
}

// AsPerfCounterSource returns the perf-counter hook if available.
func AsPerfCounterSource(a Adapter) (PerfCounterSource, bool) {
	if a.Caps()&CapPerfCounters == 0 {
		return nil, false
	}
	h, ok := a.(PerfCounterSource)
	return h, ok
}

// AsRTPrioritizer returns the real-time priority hook if available.
func AsRTPrioritizer(a Adapter) (RTPrioritizer, bool) {
	if a.Caps()&CapRTPriority == 0 {
		return nil, false
	}
	h, ok := a.(RTPrioritizer)
	return h, ok
}

// AsThermalSensor returns the thermal hook if available.
func AsThermalSensor(a Adapter) (ThermalSensor, bool) {
	if a.Caps()&CapThermal == 0 {
		return nil, false
	}
	h, ok := a.(ThermalSensor)
	return h, ok
}
