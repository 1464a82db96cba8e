package adapter

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/plugin"
)

const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// Local runs kernels in-process on the host's monotonic clock. Timestamps
// are nanoseconds since adapter creation.
type Local struct {
	identity Identity
	caps     Caps
	base     time.Time

	inst     *abi.Instance
	out      []byte // single reusable output buffer, allocated in LoadKernel
	res      Result // reused result header
	periodNs int64
}

// NewLocal creates a local adapter identified by the host.
func NewLocal() *Local {
	host, _ := os.Hostname()
	if host == "" {
		host = "local"
	}
	a := &Local{
		identity: Identity{DeviceID: host, Arch: runtime.GOARCH, OS: runtime.GOOS},
		base:     time.Now(),
	}
	if _, err := readThermalMilliC(); err == nil {
		a.caps |= CapThermal
	}
	return a
}

// Identity returns the host identity.
func (a *Local) Identity() Identity { return a.identity }

// Clock reports a nanosecond monotonic clock.
func (a *Local) Clock() ClockInfo {
	return ClockInfo{FreqHz: 0, Source: "go-monotonic"}
}

// Caps returns the optional-feature bitmask.
func (a *Local) Caps() Caps { return a.caps }

// Now returns nanoseconds since adapter creation on the monotonic clock.
func (a *Local) Now() Timestamp {
	return Timestamp(time.Since(a.base).Nanoseconds())
}

// LoadKernel resolves the kernel (path xor id), initializes it, and
// allocates the reusable output buffer sized from the declared output shape.
// A previously loaded kernel is torn down first, so one session can
// benchmark several plugins back to back.
func (a *Local) LoadKernel(path, id string, cfg *abi.Config) (abi.InitResult, error) {
	if a.inst != nil {
		old := a.inst
		a.inst = nil
		if err := old.Close(); err != nil {
			return abi.InitResult{}, fmt.Errorf("close previous kernel: %w", err)
		}
	}
	tbl, err := plugin.Resolve(path, id)
	if err != nil {
		return abi.InitResult{}, err
	}
	inst, err := abi.NewInstance(tbl.Name, tbl.New(), cfg)
	if err != nil {
		return abi.InitResult{}, err
	}
	a.inst = inst
	a.out = make([]byte, inst.OutputBytes(cfg))
	a.periodNs = int64(float64(cfg.HopLen) / cfg.SampleRateHz * 1e9)
	return inst.Result(), nil
}

// ProcessWindow runs one window on the hot path. The returned Result and its
// Output alias adapter-owned storage reused on the next call.
func (a *Local) ProcessWindow(input []byte, release Timestamp) (*Result, error) {
	if a.inst == nil {
		return nil, fmt.Errorf("adapter %s has no loaded kernel", a.identity.DeviceID)
	}
	start := a.Now()
	a.inst.Process(input, a.out)
	end := a.Now()

	a.res = Result{
		Output:   a.out,
		Release:  release,
		Start:    start,
		End:      end,
		Deadline: release + Timestamp(a.periodNs),
	}
	return &a.res, nil
}

// Calibrate forwards batch calibration to the loaded kernel. Not on the hot
// path; it may take unbounded time.
func (a *Local) Calibrate(cfg *abi.Config, windows [][]byte) (*abi.Artifact, error) {
	if a.inst == nil {
		return nil, fmt.Errorf("adapter %s has no loaded kernel", a.identity.DeviceID)
	}
	return a.inst.Calibrate(cfg, windows)
}

// ThermalMilliC reads the first thermal zone. Only wired when CapThermal was
// detected at construction.
func (a *Local) ThermalMilliC() (int64, error) {
	return readThermalMilliC()
}

// Close tears the loaded kernel down. Safe with no kernel loaded.
func (a *Local) Close() error {
	if a.inst == nil {
		return nil
	}
	inst := a.inst
	a.inst = nil
	a.out = nil
	return inst.Close()
}

func readThermalMilliC() (int64, error) {
	raw, err := os.ReadFile(thermalZonePath)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", thermalZonePath, err)
	}
	return v, nil
}
