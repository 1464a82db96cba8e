package replay

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/cortex-data/cortex/internal/timeutil"
)

// Logf is the package-level diagnostic logger, redirectable for tests. It is
// never called between emissions on the hot path.
var Logf func(format string, v ...interface{}) = log.Printf

// EmitFunc receives one hop chunk on the replay thread. The chunk buffer is
// owned by the replayer and reused for the next hop, so the callback must
// finish with it before returning — and it must return promptly: it executes
// synchronously between paced emissions, and blocking here perturbs the
// cadence of every subsequent chunk. Returning false stops the replay loop.
type EmitFunc func(chunk []byte, arrival time.Time) bool

// Replayer emits hop-sized chunks from a Source at true sample-rate cadence.
// One Replayer drives one session; it is not restartable — once stopped, a
// new session needs a new Replayer.
type Replayer struct {
	src    Source
	clock  timeutil.Clock
	period time.Duration
	chunk  []byte
	emit   EmitFunc
	stop   atomic.Bool
}

// New creates a replayer emitting hopBytes-sized chunks every
// hopLen/sampleRate seconds.
func New(src Source, hopBytes int, hopLen int, sampleRateHz float64, clock timeutil.Clock, emit EmitFunc) (*Replayer, error) {
	if hopBytes <= 0 || hopLen <= 0 || sampleRateHz <= 0 {
		return nil, fmt.Errorf("invalid replay geometry: hopBytes=%d hopLen=%d rate=%g",
			hopBytes, hopLen, sampleRateHz)
	}
	if emit == nil {
		return nil, fmt.Errorf("emit callback is required")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	period := time.Duration(float64(hopLen) / sampleRateHz * float64(time.Second))
	return &Replayer{
		src:    src,
		clock:  clock,
		period: period,
		chunk:  make([]byte, hopBytes),
		emit:   emit,
	}, nil
}

// Period returns the nominal hop period.
func (r *Replayer) Period() time.Duration { return r.period }

// Stop requests a cooperative shutdown. The flag is observed between
// emissions, so shutdown latency is bounded by one hop period. The flag is
// never reset.
func (r *Replayer) Stop() { r.stop.Store(true) }

// Run is the timing loop; it owns its thread of control and returns when the
// source fails, the callback declines more data, or Stop is called.
//
// The next emission instant is a running accumulator — previous target plus
// one period — never re-derived from "now", so per-emission jitter does not
// accumulate into drift. The loop sleeps with SleepUntil, which retries
// across early wakeups.
func (r *Replayer) Run() error {
	target := r.clock.Now()
	var emitted uint64
	for !r.stop.Load() {
		if err := r.src.ReadHop(r.chunk); err != nil {
			return fmt.Errorf("hop %d: %w", emitted, err)
		}
		if !r.emit(r.chunk, r.clock.Now()) {
			break
		}
		emitted++
		target = target.Add(r.period)
		r.clock.SleepUntil(target)
	}
	Logf("replay: stopped after %d hop emissions", emitted)
	return nil
}
