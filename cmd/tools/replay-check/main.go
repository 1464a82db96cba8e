// Command replay-check measures the replayer's pacing on the current host:
// it replays a synthetic source for N hops against the real clock and
// reports inter-emission spacing statistics and worst cumulative drift.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cortex-data/cortex/internal/replay"
)

var (
	rateHz   = flag.Float64("rate", 160, "sample rate in Hz")
	hopLen   = flag.Int("hop", 80, "hop length in samples")
	channels = flag.Int("channels", 64, "channel count")
	hops     = flag.Int("hops", 1000, "number of hop emissions to measure")
)

func main() {
	flag.Parse()
	if *hops < 2 {
		log.Fatalf("need at least 2 hops to measure spacing")
	}

	frameBytes := *channels * 4
	src, err := replay.NewMemorySource(make([]byte, *hopLen*frameBytes), frameBytes)
	if err != nil {
		log.Fatalf("source: %v", err)
	}

	arrivals := make([]time.Time, 0, *hops)
	emit := func(_ []byte, arrival time.Time) bool {
		arrivals = append(arrivals, arrival)
		return len(arrivals) < *hops
	}
	rep, err := replay.New(src, *hopLen*frameBytes, *hopLen, *rateHz, nil, emit)
	if err != nil {
		log.Fatalf("replayer: %v", err)
	}
	log.Printf("replaying %d hops at %g Hz (hop %d, period %v)", *hops, *rateHz, *hopLen, rep.Period())
	if err := rep.Run(); err != nil {
		log.Fatalf("replay: %v", err)
	}

	period := rep.Period()
	spacings := make([]float64, len(arrivals)-1)
	for i := 1; i < len(arrivals); i++ {
		spacings[i-1] = float64(arrivals[i].Sub(arrivals[i-1]).Nanoseconds())
	}
	var worstDrift time.Duration
	for i, a := range arrivals {
		drift := a.Sub(arrivals[0].Add(time.Duration(i) * period))
		if drift < 0 {
			drift = -drift
		}
		if drift > worstDrift {
			worstDrift = drift
		}
	}

	mean := stat.Mean(spacings, nil)
	sd := stat.StdDev(spacings, nil)
	fmt.Printf("emissions:        %d\n", len(arrivals))
	fmt.Printf("nominal period:   %v\n", period)
	fmt.Printf("mean spacing:     %v\n", time.Duration(mean))
	fmt.Printf("spacing stddev:   %v\n", time.Duration(sd))
	fmt.Printf("worst drift:      %v\n", worstDrift)
	fmt.Printf("mean error:       %v\n", time.Duration(mean)-period)
}
