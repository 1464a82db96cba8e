package sched

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/adapter"
	"github.com/cortex-data/cortex/internal/replay"
	"github.com/cortex-data/cortex/internal/telemetry"
	"github.com/cortex-data/cortex/internal/timeutil"
)

// Logf is the package logger. Redirect it to capture output in tests.
var Logf = log.Printf

// ErrStopped is returned by Run when shutdown was requested before the run
// started. The stop flag is never reset; continuing requires a fresh runner.
var ErrStopped = errors.New("sched: shutdown requested")

// RTPolicy is the per-plugin real-time scheduling request. A zero value
// requests nothing.
type RTPolicy struct {
	Class      string // scheduler class: "fifo", "rr", or "" for none
	Priority   int
	Affinity   uint64 // CPU affinity bitmask, 0 = unconstrained
	DeadlineNs int64  // deadline override in ns, 0 = nominal hop period
}

// Plan describes one plugin's benchmark run. Exactly one of KernelPath and
// KernelID must be set.
type Plan struct {
	Name       string
	KernelPath string
	KernelID   string
	Config     *abi.Config
	Policy     RTPolicy

	// Warmup tags the first N windows of the run; they are processed
	// identically and excluded only by downstream reporting.
	Warmup int

	// Passes is the number of full passes over the sample source. Zero
	// means one.
	Passes int

	// OnResult, when set, observes each invocation's result on the dispatch
	// thread. The result's output buffer is reused by the next invocation,
	// so the observer must copy anything it keeps and return promptly.
	OnResult func(index uint64, window []byte, res *adapter.Result)
}

// RunResult is the outcome of one completed (or stopped) plugin run.
type RunResult struct {
	RunID     string
	Plugin    string
	Init      abi.InitResult
	Telemetry *telemetry.Buffer
}

// Runner dispatches benchmark runs against one adapter, one plugin at a
// time. Dispatch executes on the replay thread, so telemetry ordering
// matches invocation order with no extra synchronization.
type Runner struct {
	adapter adapter.Adapter
	clock   timeutil.Clock
	stopped atomic.Bool
	rep     atomic.Pointer[replay.Replayer]
}

// NewRunner creates a runner on the given adapter. A nil clock selects the
// real monotonic clock.
func NewRunner(a adapter.Adapter, clock timeutil.Clock) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{adapter: a, clock: clock}
}

// Stop requests cooperative shutdown. The in-flight hop completes before the
// flag is observed, bounding stop latency by one hop period. The request is
// sticky: it ends the active run and refuses any run started afterwards, so
// a signal landing between plugin runs still ends the session.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	if rep := r.rep.Load(); rep != nil {
		rep.Stop()
	}
}

// Stopped reports whether shutdown has been requested.
func (r *Runner) Stopped() bool { return r.stopped.Load() }

// Run benchmarks one plugin: loads it, replays src at true cadence, and
// dispatches every complete window. An error return means this plugin's run
// produced no trustworthy data; the caller decides whether to continue with
// other plugins.
func (r *Runner) Run(plan *Plan, src replay.Source) (*RunResult, error) {
	if plan == nil || plan.Config == nil {
		return nil, fmt.Errorf("sched: plan and config are required")
	}
	if r.stopped.Load() {
		return nil, ErrStopped
	}
	cfg := plan.Config
	passes := plan.Passes
	if passes <= 0 {
		passes = 1
	}
	if src.Frames() <= 0 || src.Frames()%int64(cfg.HopLen) != 0 {
		return nil, fmt.Errorf("sched: source length %d frames is not a whole number of %d-sample hops",
			src.Frames(), cfg.HopLen)
	}
	hopsPerPass := src.Frames() / int64(cfg.HopLen)
	totalHops := hopsPerPass * int64(passes)

	init, err := r.adapter.LoadKernel(plan.KernelPath, plan.KernelID, cfg)
	if err != nil {
		return nil, fmt.Errorf("sched: load %s: %w", plan.Name, err)
	}
	r.applyPolicy(plan)

	asm, err := NewAssembler(cfg)
	if err != nil {
		return nil, err
	}
	buf, err := telemetry.NewBuffer(0)
	if err != nil {
		return nil, err
	}

	var deadlineTicks adapter.Timestamp
	if plan.Policy.DeadlineNs > 0 {
		deadlineTicks = r.adapter.Clock().TicksFor(plan.Policy.DeadlineNs)
	}

	runID := uuid.NewString()
	var emitted int64
	var index uint64
	var runErr error
	emit := func(chunk []byte, _ time.Time) bool {
		window, ready := asm.Push(chunk)
		emitted++
		if ready {
			release := r.adapter.Now()
			res, err := r.adapter.ProcessWindow(window, release)
			if err != nil {
				runErr = err
				return false
			}
			deadline := res.Deadline
			if deadlineTicks > 0 {
				deadline = res.Release + deadlineTicks
			}
			rec := telemetry.Record{
				RunID:        runID,
				Plugin:       plan.Name,
				Index:        index,
				Release:      int64(res.Release),
				Deadline:     int64(deadline),
				Start:        int64(res.Start),
				End:          int64(res.End),
				Missed:       res.End > deadline,
				WindowLen:    cfg.WindowLen,
				HopLen:       cfg.HopLen,
				Channels:     cfg.Channels,
				SampleRateHz: cfg.SampleRateHz,
				Warmup:       index < uint64(plan.Warmup),
				Repeat:       int((emitted - 1) / hopsPerPass),
			}
			if plan.OnResult != nil {
				plan.OnResult(index, window, res)
			}
			if err := buf.Append(&rec); err != nil {
				runErr = err
				return false
			}
			index++
		}
		return emitted < totalHops
	}

	rep, err := replay.New(src, cfg.HopBytes(), cfg.HopLen, cfg.SampleRateHz, r.clock, emit)
	if err != nil {
		return nil, err
	}
	r.rep.Store(rep)
	defer r.rep.Store(nil)
	if r.stopped.Load() {
		// Stop raced with the replayer install; make sure it lands.
		rep.Stop()
	}
	if err := rep.Run(); err != nil {
		return nil, fmt.Errorf("sched: replay for %s: %w", plan.Name, err)
	}
	if runErr != nil {
		return nil, fmt.Errorf("sched: run %s: %w", plan.Name, runErr)
	}
	Logf("run %s (%s): %d windows over %d hops", runID, plan.Name, buf.Len(), emitted)
	return &RunResult{RunID: runID, Plugin: plan.Name, Init: init, Telemetry: buf}, nil
}

// applyPolicy requests the plan's real-time policy when the adapter offers
// the hook. Refusal is logged, never fatal: a run without elevated priority
// still produces valid (if noisier) data.
func (r *Runner) applyPolicy(plan *Plan) {
	if plan.Policy.Class == "" {
		return
	}
	rt, ok := adapter.AsRTPrioritizer(r.adapter)
	if !ok {
		Logf("adapter %s has no RT priority hook; running %s unprivileged",
			r.adapter.Identity().DeviceID, plan.Name)
		return
	}
	if err := rt.RequestRTPriority(plan.Policy.Class, plan.Policy.Priority, plan.Policy.Affinity); err != nil {
		Logf("RT priority request for %s failed: %v", plan.Name, err)
	}
}
