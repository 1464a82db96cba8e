package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cortex-data/cortex/internal/hostinfo"
)

// Column order of the tabular form. The structured form exposes the same
// fields by name.
var textHeader = []string{
	"run_id", "plugin", "window_index",
	"release", "deadline", "start", "end",
	"missed", "window", "hop", "channels", "sample_rate_hz",
	"warmup", "repeat",
}

// WriteText serializes the buffer as a tab-separated table preceded by a
// commented system-information block.
func (b *Buffer) WriteText(path string, info hostinfo.Info) error {
	if b == nil {
		return fmt.Errorf("telemetry: write of nil buffer")
	}
	if path == "" {
		return fmt.Errorf("telemetry: empty output path")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("telemetry: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# cortex telemetry\n")
	fmt.Fprintf(w, "# hostname: %s\n", info.Hostname)
	fmt.Fprintf(w, "# cpu: %s\n", info.CPU)
	fmt.Fprintf(w, "# os: %s\n", info.OS)
	fmt.Fprintf(w, "# cores: %d\n", info.Cores)
	fmt.Fprintf(w, "# memory_bytes: %d\n", info.MemoryBytes)
	if info.ThermalMilliC != nil {
		fmt.Fprintf(w, "# thermal_milli_c: %d\n", *info.ThermalMilliC)
	}
	for i, col := range textHeader {
		if i > 0 {
			w.WriteByte('\t')
		}
		w.WriteString(col)
	}
	w.WriteByte('\n')

	for i := 0; i < b.count; i++ {
		r := &b.storage[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%t\t%d\t%d\t%d\t%g\t%t\t%d\n",
			r.RunID, r.Plugin, r.Index,
			r.Release, r.Deadline, r.Start, r.End,
			r.Missed, r.WindowLen, r.HopLen, r.Channels, r.SampleRateHz,
			r.Warmup, r.Repeat)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("telemetry: write %s: %w", path, err)
	}
	return nil
}

// structured line tags. The system-information object is tagged distinctly
// from per-record objects so consumers can stream the file line by line.
type systemInfoLine struct {
	Type string        `json:"type"` // "system_info"
	Info hostinfo.Info `json:"info"`
}

type recordLine struct {
	Type string `json:"type"` // "record"
	*Record
}

// WriteStructured serializes the buffer as line-delimited JSON: one
// system-information object followed by one object per record.
func (b *Buffer) WriteStructured(path string, info hostinfo.Info) error {
	if b == nil {
		return fmt.Errorf("telemetry: write of nil buffer")
	}
	if path == "" {
		return fmt.Errorf("telemetry: empty output path")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("telemetry: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	if err := enc.Encode(systemInfoLine{Type: "system_info", Info: info}); err != nil {
		return fmt.Errorf("telemetry: encode system info: %w", err)
	}
	for i := 0; i < b.count; i++ {
		if err := enc.Encode(recordLine{Type: "record", Record: &b.storage[i]}); err != nil {
			return fmt.Errorf("telemetry: encode record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("telemetry: write %s: %w", path, err)
	}
	return nil
}

// ReadStructured loads a structured telemetry file back into memory,
// returning the system information line and the records in file order.
// Used by report generation.
func ReadStructured(path string) (hostinfo.Info, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return hostinfo.Info{}, nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	defer f.Close()

	var info hostinfo.Info
	var records []Record
	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var line struct {
			Type string        `json:"type"`
			Info hostinfo.Info `json:"info"`
			Record
		}
		if err := dec.Decode(&line); err != nil {
			return info, nil, fmt.Errorf("telemetry: parse %s: %w", path, err)
		}
		switch line.Type {
		case "system_info":
			info = line.Info
		case "record":
			records = append(records, line.Record)
		default:
			return info, nil, fmt.Errorf("telemetry: unknown line type %q in %s", line.Type, path)
		}
	}
	return info, records, nil
}
