// Command report summarizes a benchmark run: percentile latencies and miss
// rate on stdout, plus an optional HTML latency timeline.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/cortex-data/cortex/internal/telemetry"
	"github.com/cortex-data/cortex/internal/telemetry/sqlitestore"
)

var (
	inPath        = flag.String("in", "", "structured telemetry file (.jsonl)")
	dbFile        = flag.String("db", "", "results database (alternative to -in)")
	runID         = flag.String("run", "", "run id to report from -db; defaults to the newest run")
	htmlPath      = flag.String("html", "", "write an HTML latency timeline here")
	includeWarmup = flag.Bool("include-warmup", false, "include warmup windows in statistics")
)

func main() {
	flag.Parse()
	records, err := loadRecords()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(records) == 0 {
		log.Fatalf("no records to report")
	}

	kept := records[:0:0]
	warmup := 0
	for _, r := range records {
		if r.Warmup && !*includeWarmup {
			warmup++
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		log.Fatalf("all %d records are warmup; rerun with -include-warmup", len(records))
	}

	latencies := make([]float64, len(kept))
	missed := 0
	for i, r := range kept {
		latencies[i] = float64(r.End - r.Release)
		if r.Missed {
			missed++
		}
	}
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	first := kept[0]
	fmt.Printf("run:        %s (%s)\n", first.RunID, first.Plugin)
	fmt.Printf("geometry:   window=%d hop=%d channels=%d rate=%gHz\n",
		first.WindowLen, first.HopLen, first.Channels, first.SampleRateHz)
	fmt.Printf("windows:    %d (%d warmup excluded)\n", len(kept), warmup)
	fmt.Printf("latency p50: %.0f ns\n", stat.Quantile(0.50, stat.Empirical, sorted, nil))
	fmt.Printf("latency p90: %.0f ns\n", stat.Quantile(0.90, stat.Empirical, sorted, nil))
	fmt.Printf("latency p99: %.0f ns\n", stat.Quantile(0.99, stat.Empirical, sorted, nil))
	fmt.Printf("latency max: %.0f ns\n", sorted[len(sorted)-1])
	fmt.Printf("miss rate:   %.2f%% (%d/%d)\n", 100*float64(missed)/float64(len(kept)), missed, len(kept))

	if *htmlPath != "" {
		if err := writeChart(*htmlPath, kept, latencies); err != nil {
			log.Fatalf("chart: %v", err)
		}
		log.Printf("wrote %s", *htmlPath)
	}
}

func loadRecords() ([]telemetry.Record, error) {
	switch {
	case *inPath != "" && *dbFile != "":
		return nil, fmt.Errorf("use -in or -db, not both")
	case *inPath != "":
		_, records, err := telemetry.ReadStructured(*inPath)
		return records, err
	case *dbFile != "":
		store, err := sqlitestore.Open(*dbFile)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		id := *runID
		if id == "" {
			runs, err := store.Runs()
			if err != nil {
				return nil, err
			}
			if len(runs) == 0 {
				return nil, fmt.Errorf("database holds no runs")
			}
			id = runs[0].RunID
		}
		return store.Records(id)
	default:
		return nil, fmt.Errorf("one of -in or -db is required")
	}
}

func writeChart(path string, records []telemetry.Record, latencies []float64) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "cortex latency timeline", Width: "1200px", Height: "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s latency", records[0].Plugin),
			Subtitle: fmt.Sprintf("run %s", records[0].RunID),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "window index"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "end-release (ns)"}),
	)

	x := make([]uint64, len(records))
	latency := make([]opts.LineData, len(records))
	deadline := make([]opts.LineData, len(records))
	for i, r := range records {
		x[i] = r.Index
		latency[i] = opts.LineData{Value: latencies[i]}
		deadline[i] = opts.LineData{Value: r.Deadline - r.Release}
	}
	line.SetXAxis(x).
		AddSeries("latency", latency).
		AddSeries("deadline budget", deadline)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
