package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cortex-data/cortex/internal/hostinfo"
)

func testInfo() hostinfo.Info {
	thermal := int64(48500)
	return hostinfo.Info{
		Hostname:      "bench-01",
		CPU:           "Cortex-A76",
		OS:            "linux 6.18.0",
		Cores:         4,
		MemoryBytes:   8 << 30,
		ThermalMilliC: &thermal,
	}
}

func TestWriteText(t *testing.T) {
	b, _ := NewBuffer(0)
	for i := 0; i < 3; i++ {
		r := makeRecord(i)
		if i == 2 {
			r.Missed = true
		}
		if err := b.Append(r); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "out.txt")
	if err := b.WriteText(path, testInfo()); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")

	var comments, rows int
	var header string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "#"):
			comments++
		case header == "":
			header = line
		default:
			rows++
		}
	}
	if comments != 7 {
		t.Errorf("comment lines = %d, want 7 (including thermal)", comments)
	}
	if want := strings.Join(textHeader, "\t"); header != want {
		t.Errorf("header = %q, want %q", header, want)
	}
	if rows != 3 {
		t.Errorf("data rows = %d, want 3", rows)
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "# hostname:") && !strings.Contains(line, "bench-01") {
			t.Errorf("hostname line = %q", line)
		}
	}
	if !strings.Contains(lines[len(lines)-1], "true") {
		t.Errorf("missed flag not rendered in last row: %q", lines[len(lines)-1])
	}
}

func TestWriteTextNoThermal(t *testing.T) {
	b, _ := NewBuffer(0)
	b.Append(makeRecord(0))

	info := testInfo()
	info.ThermalMilliC = nil
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := b.WriteText(path, info); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "thermal_milli_c") {
		t.Error("thermal line emitted without a sensor reading")
	}
}

func TestStructuredRoundTrip(t *testing.T) {
	b, _ := NewBuffer(0)
	want := make([]Record, 0, 4)
	for i := 0; i < 4; i++ {
		r := makeRecord(i)
		r.Warmup = i == 0
		r.Repeat = i / 2
		if err := b.Append(r); err != nil {
			t.Fatal(err)
		}
		want = append(want, *r)
	}

	path := filepath.Join(t.TempDir(), "out.jsonl")
	info := testInfo()
	if err := b.WriteStructured(path, info); err != nil {
		t.Fatalf("WriteStructured: %v", err)
	}

	gotInfo, gotRecords, err := ReadStructured(path)
	if err != nil {
		t.Fatalf("ReadStructured: %v", err)
	}
	if diff := cmp.Diff(info, gotInfo); diff != "" {
		t.Errorf("system info mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, gotRecords); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReadStructuredRejectsUnknownLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte(`{"type":"comment"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadStructured(path); err == nil {
		t.Error("unknown line type accepted")
	}
}

func TestWriteErrors(t *testing.T) {
	b, _ := NewBuffer(0)
	if err := b.WriteText("", testInfo()); err == nil {
		t.Error("empty path accepted by WriteText")
	}
	if err := b.WriteStructured("", testInfo()); err == nil {
		t.Error("empty path accepted by WriteStructured")
	}
	var nilBuf *Buffer
	if err := nilBuf.WriteText(filepath.Join(t.TempDir(), "x"), testInfo()); err == nil {
		t.Error("nil buffer accepted")
	}
}
