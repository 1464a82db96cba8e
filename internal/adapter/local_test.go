package adapter

import (
	"testing"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/plugin"
)

func init() {
	plugin.Register("copy-test", func() abi.Kernel { return copyKernel{} })
}

type copyKernel struct{}

func (copyKernel) Init(cfg *abi.Config) (abi.InitResult, error) {
	return abi.InitResult{OutputWindowLen: cfg.WindowLen, OutputChannels: cfg.Channels}, nil
}
func (copyKernel) Process(in, out []byte) { copy(out, in) }
func (copyKernel) Close() error           { return nil }

func testConfig() *abi.Config {
	return &abi.Config{
		SampleRateHz: 1000,
		WindowLen:    8,
		HopLen:       4,
		Channels:     2,
		DataType:     abi.Float32,
	}
}

func TestLocalLoadAndProcess(t *testing.T) {
	a := NewLocal()
	defer a.Close()

	cfg := testConfig()
	res, err := a.LoadKernel("", "copy-test", cfg)
	if err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	if res.OutputWindowLen != cfg.WindowLen || res.OutputChannels != cfg.Channels {
		t.Errorf("unexpected init result %+v", res)
	}

	input := make([]byte, cfg.WindowBytes())
	for i := range input {
		input[i] = byte(i)
	}
	release := a.Now()
	r, err := a.ProcessWindow(input, release)
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}

	if r.Release != release {
		t.Errorf("release = %d, want %d", r.Release, release)
	}
	if r.Start < release || r.End < r.Start {
		t.Errorf("timestamps out of order: release=%d start=%d end=%d", r.Release, r.Start, r.End)
	}
	// hop of 4 samples at 1 kHz is a 4ms nominal period
	if r.Deadline != release+Timestamp(4_000_000) {
		t.Errorf("deadline = %d, want release+4ms", r.Deadline)
	}
	for i := range input {
		if r.Output[i] != input[i] {
			t.Fatalf("output[%d] = %d, want %d", i, r.Output[i], input[i])
		}
	}
}

func TestLocalBufferReuse(t *testing.T) {
	a := NewLocal()
	defer a.Close()

	cfg := testConfig()
	if _, err := a.LoadKernel("", "copy-test", cfg); err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}

	input := make([]byte, cfg.WindowBytes())
	r1, err := a.ProcessWindow(input, a.Now())
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	first := &r1.Output[0]
	r2, err := a.ProcessWindow(input, a.Now())
	if err != nil {
		t.Fatalf("ProcessWindow: %v", err)
	}
	// Single-buffer-reuse rule: the same backing storage serves every call.
	if &r2.Output[0] != first {
		t.Error("output buffer was reallocated between calls")
	}
}

func TestLocalErrors(t *testing.T) {
	a := NewLocal()
	defer a.Close()

	if _, err := a.ProcessWindow(nil, 0); err == nil {
		t.Error("ProcessWindow before LoadKernel succeeded")
	}
	if _, err := a.LoadKernel("", "no-such-kernel", testConfig()); err == nil {
		t.Error("unknown kernel loaded")
	}
	if _, err := a.LoadKernel("/tmp/x.so", "copy-test", testConfig()); err == nil {
		t.Error("path and id both accepted")
	}
	if _, err := a.LoadKernel("", "copy-test", testConfig()); err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	// A second load replaces the first so one session can run several
	// plugins in sequence.
	if _, err := a.LoadKernel("", "copy-test", testConfig()); err != nil {
		t.Errorf("reload on live adapter failed: %v", err)
	}
	if _, err := a.ProcessWindow(make([]byte, testConfig().WindowBytes()), 0); err != nil {
		t.Errorf("ProcessWindow after reload: %v", err)
	}
}

func TestClockInfoConversions(t *testing.T) {
	cases := []struct {
		ci    ClockInfo
		ticks Timestamp
		nanos int64
	}{
		{ClockInfo{FreqHz: 0}, 12345, 12345},
		{ClockInfo{FreqHz: 1e9}, 12345, 12345},
		{ClockInfo{FreqHz: 1000}, 1500, 1_500_000_000},
		{ClockInfo{FreqHz: 24_000_000}, 24_000_000, 1_000_000_000},
	}
	for _, c := range cases {
		if got := c.ci.ToNanos(c.ticks); got != c.nanos {
			t.Errorf("ToNanos(%d)@%dHz = %d, want %d", c.ticks, c.ci.FreqHz, got, c.nanos)
		}
		if got := c.ci.TicksFor(c.nanos); got != c.ticks {
			t.Errorf("TicksFor(%d)@%dHz = %d, want %d", c.nanos, c.ci.FreqHz, got, c.ticks)
		}
	}
}

func TestHookGating(t *testing.T) {
	a := NewLocal()
	defer a.Close()

	// The hook helper must honour the capability bit, not just the
	// interface: Local always has the method but only advertises it when
	// the thermal zone is readable.
	h, ok := AsThermalSensor(a)
	if a.Caps()&CapThermal == 0 {
		if ok || h != nil {
			t.Error("thermal hook returned without capability bit")
		}
	} else if !ok || h == nil {
		t.Error("thermal hook missing despite capability bit")
	}

	if _, ok := AsFreqController(a); ok {
		t.Error("local adapter advertised frequency control")
	}
	if _, ok := AsRTPrioritizer(a); ok {
		t.Error("local adapter advertised RT priority")
	}
}
