// Package hostinfo queries the host identifiers used to annotate telemetry
// output. Every query degrades to an empty or zero value rather than
// failing: annotation must never abort a benchmark run.
package hostinfo

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Info describes the machine a run executed on.
type Info struct {
	Hostname      string `json:"hostname"`
	CPU           string `json:"cpu"`
	OS            string `json:"os"`
	Cores         int    `json:"cores"`
	MemoryBytes   uint64 `json:"memory_bytes"`
	ThermalMilliC *int64 `json:"thermal_milli_c,omitempty"`
}

// Collect gathers host annotations, leaving fields zero where the platform
// does not expose them.
func Collect() Info {
	info := Info{
		Hostname: hostname(),
		CPU:      cpuModel(),
		OS:       osString(),
		Cores:    runtime.NumCPU(),
	}
	info.MemoryBytes = memTotalBytes()
	if t, ok := thermalMilliC(); ok {
		info.ThermalMilliC = &t
	}
	return info
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

// cpuModel returns the first "model name" entry from /proc/cpuinfo.
func cpuModel() string {
	raw, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return runtime.GOARCH
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if name, ok := strings.CutPrefix(line, "model name"); ok {
			if _, v, ok := strings.Cut(name, ":"); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return runtime.GOARCH
}

func osString() string {
	release, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return runtime.GOOS
	}
	return runtime.GOOS + " " + strings.TrimSpace(string(release))
}

// memTotalBytes parses MemTotal from /proc/meminfo (reported in kB).
func memTotalBytes() uint64 {
	raw, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if rest, ok := strings.CutPrefix(line, "MemTotal:"); ok {
			fields := strings.Fields(rest)
			if len(fields) >= 1 {
				if kb, err := strconv.ParseUint(fields[0], 10, 64); err == nil {
					return kb * 1024
				}
			}
		}
	}
	return 0
}

func thermalMilliC() (int64, bool) {
	raw, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
