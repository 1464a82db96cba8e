// Command cortex benchmarks signal-processing kernels against a replayed
// dataset, producing one telemetry file pair per plugin and optionally
// persisting results to SQLite.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cortex-data/cortex/internal/adapter"
	"github.com/cortex-data/cortex/internal/adapter/wire"
	"github.com/cortex-data/cortex/internal/config"
	"github.com/cortex-data/cortex/internal/hostinfo"
	_ "github.com/cortex-data/cortex/internal/kernels"
	"github.com/cortex-data/cortex/internal/replay"
	"github.com/cortex-data/cortex/internal/sched"
	"github.com/cortex-data/cortex/internal/telemetry/sqlitestore"
	"github.com/cortex-data/cortex/internal/version"
)

var (
	configPath  = flag.String("config", "", "session config JSON (required)")
	adapterSpec = flag.String("adapter", "local", "adapter: \"local\" or \"serial:<device>[,baud]\"")
	dbPath      = flag.String("db", "", "override database_path from the session config")
	outDir      = flag.String("out", "", "override telemetry_dir from the session config")
	showVersion = flag.Bool("version", false, "print build identification and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	plans, err := cfg.Plans()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ad, err := openAdapter(*adapterSpec)
	if err != nil {
		log.Fatalf("adapter: %v", err)
	}
	defer ad.Close()

	info := hostinfo.Collect()
	if sensor, ok := adapter.AsThermalSensor(ad); ok {
		// Prefer the execution target's thermal reading over the host's.
		if t, err := sensor.ThermalMilliC(); err == nil {
			info.ThermalMilliC = &t
		}
	}

	dir := cfg.GetTelemetryDir()
	if *outDir != "" {
		dir = *outDir
	}
	database := cfg.GetDatabasePath()
	if *dbPath != "" {
		database = *dbPath
	}
	var store *sqlitestore.Store
	if database != "" {
		store, err = sqlitestore.Open(database)
		if err != nil {
			log.Fatalf("store: %v", err)
		}
		defer store.Close()
	}

	runner := sched.NewRunner(ad, nil)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("received %v, stopping after the current hop", s)
		runner.Stop()
	}()

	frameBytes := cfg.GetDataType().Size() * *cfg.Channels
	completed := 0
	for _, plan := range plans {
		if runner.Stopped() {
			log.Printf("shutdown requested, skipping remaining plugins")
			break
		}
		if err := runPlugin(runner, plan, *cfg.DatasetPath, frameBytes, dir, info, store); err != nil {
			if errors.Is(err, sched.ErrStopped) {
				break
			}
			// Per-plugin failures skip that plugin and continue; the run
			// as a whole only fails when nothing completed.
			log.Printf("plugin %s: %v (skipped)", plan.Name, err)
			continue
		}
		completed++
	}
	if completed == 0 {
		log.Fatalf("no plugin completed")
	}
	log.Printf("completed %d/%d plugins", completed, len(plans))
}

func runPlugin(runner *sched.Runner, plan *sched.Plan, dataset string, frameBytes int,
	dir string, info hostinfo.Info, store *sqlitestore.Store) error {

	src, err := replay.NewFileSource(dataset, frameBytes)
	if err != nil {
		return err
	}
	defer src.Close()

	result, err := runner.Run(plan, src)
	if err != nil {
		return err
	}

	base := filepath.Join(dir, fmt.Sprintf("%s-%s", plan.Name, result.RunID))
	if err := result.Telemetry.WriteText(base+".txt", info); err != nil {
		return err
	}
	if err := result.Telemetry.WriteStructured(base+".jsonl", info); err != nil {
		return err
	}
	log.Printf("plugin %s: %d windows -> %s.{txt,jsonl}", plan.Name, result.Telemetry.Len(), base)

	if store != nil {
		if err := store.SaveRun(result.RunID, plan.Name, info, result.Telemetry.Records()); err != nil {
			return err
		}
	}
	return nil
}

// openAdapter parses the -adapter flag. "local" runs kernels in-process;
// "serial:<device>[,baud]" and "tcp:<host:port>" proxy to a device running
// the wire protocol (see cmd/tools/device-server).
func openAdapter(spec string) (adapter.Adapter, error) {
	if spec == "local" {
		return adapter.NewLocal(), nil
	}
	if addr, ok := strings.CutPrefix(spec, "tcp:"); ok {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return wire.Dial(conn)
	}
	rest, ok := strings.CutPrefix(spec, "serial:")
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q", spec)
	}
	device := rest
	baud := 0
	if dev, b, found := strings.Cut(rest, ","); found {
		device = dev
		parsed, err := strconv.Atoi(b)
		if err != nil {
			return nil, fmt.Errorf("bad baud rate %q: %w", b, err)
		}
		baud = parsed
	}
	conn, err := wire.OpenSerial(device, baud)
	if err != nil {
		return nil, err
	}
	return wire.Dial(conn)
}
