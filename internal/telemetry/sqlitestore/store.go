// Package sqlitestore persists benchmark runs and their per-window timing
// records to a SQLite database, for comparison across runs and hosts.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cortex-data/cortex/internal/hostinfo"
	"github.com/cortex-data/cortex/internal/telemetry"
)

// Logf is the package logger. Redirect it to capture output in tests.
var Logf = log.Printf

// Store wraps a SQLite database holding runs and records tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	// Avoid transient lock failures when a report tool reads while a
	// benchmark writes.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: set busy_timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// RunSummary describes one stored run.
type RunSummary struct {
	RunID     string
	Plugin    string
	CreatedAt time.Time
	Records   int
	Missed    int
}

// SaveRun stores the run row and its records in one transaction. Window
// geometry columns are taken from the first record; a run with no records
// stores zero geometry.
func (s *Store) SaveRun(runID, plugin string, info hostinfo.Info, records []telemetry.Record) error {
	if runID == "" {
		return fmt.Errorf("sqlitestore: empty run id")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	var window, hop, channels int
	var rate float64
	if len(records) > 0 {
		window = records[0].WindowLen
		hop = records[0].HopLen
		channels = records[0].Channels
		rate = records[0].SampleRateHz
	}
	var thermal any
	if info.ThermalMilliC != nil {
		thermal = *info.ThermalMilliC
	}
	_, err = tx.Exec(`INSERT INTO runs
		(run_id, plugin, hostname, cpu, os, cores, memory_bytes, thermal_milli_c,
		 window, hop, channels, sample_rate_hz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, plugin, info.Hostname, info.CPU, info.OS, info.Cores,
		info.MemoryBytes, thermal, window, hop, channels, rate)
	if err != nil {
		return fmt.Errorf("sqlitestore: insert run %s: %w", runID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO records
		(run_id, window_index, release_at, deadline_at, start_at, end_at,
		 missed, warmup, repeat_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlitestore: prepare record insert: %w", err)
	}
	defer stmt.Close()
	for i := range records {
		r := &records[i]
		if _, err := stmt.Exec(runID, r.Index, r.Release, r.Deadline,
			r.Start, r.End, r.Missed, r.Warmup, r.Repeat); err != nil {
			return fmt.Errorf("sqlitestore: insert record %d: %w", r.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit run %s: %w", runID, err)
	}
	Logf("stored run %s (%s): %d records", runID, plugin, len(records))
	return nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs() ([]RunSummary, error) {
	rows, err := s.db.Query(`SELECT r.run_id, r.plugin, r.created_at,
			COUNT(rec.run_id), COALESCE(SUM(rec.missed), 0)
		FROM runs r
		LEFT JOIN records rec ON rec.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		if err := rows.Scan(&run.RunID, &run.Plugin, &run.CreatedAt,
			&run.Records, &run.Missed); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Records loads the records of one run in window-index order, rehydrating
// the geometry fields from the run row.
func (s *Store) Records(runID string) ([]telemetry.Record, error) {
	rows, err := s.db.Query(`SELECT rec.window_index, rec.release_at,
			rec.deadline_at, rec.start_at, rec.end_at, rec.missed,
			rec.warmup, rec.repeat_index,
			r.plugin, r.window, r.hop, r.channels, r.sample_rate_hz
		FROM records rec
		JOIN runs r ON r.run_id = rec.run_id
		WHERE rec.run_id = ?
		ORDER BY rec.window_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query records of %s: %w", runID, err)
	}
	defer rows.Close()

	var records []telemetry.Record
	for rows.Next() {
		rec := telemetry.Record{RunID: runID}
		if err := rows.Scan(&rec.Index, &rec.Release, &rec.Deadline,
			&rec.Start, &rec.End, &rec.Missed, &rec.Warmup, &rec.Repeat,
			&rec.Plugin, &rec.WindowLen, &rec.HopLen, &rec.Channels,
			&rec.SampleRateHz); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
