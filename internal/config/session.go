// Package config loads the benchmark session description: window geometry,
// the sample dataset, and the list of plugins to run with their per-plugin
// parameters and real-time policy.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/sched"
)

// SessionConfig is the root of a session JSON file. Fields are pointers so
// omitted values fall back to the Get* defaults; partial configs are safe.
type SessionConfig struct {
	SampleRateHz *float64 `json:"sample_rate_hz,omitempty"`
	WindowLen    *int     `json:"window_len,omitempty"`
	HopLen       *int     `json:"hop_len,omitempty"`
	Channels     *int     `json:"channels,omitempty"`
	DataType     *string  `json:"data_type,omitempty"` // f32, f64, i16, i32
	AllowInPlace *bool    `json:"allow_in_place,omitempty"`

	DatasetPath   *string `json:"dataset_path,omitempty"`
	WarmupWindows *int    `json:"warmup_windows,omitempty"`
	Passes        *int    `json:"passes,omitempty"`

	TelemetryDir *string `json:"telemetry_dir,omitempty"`
	DatabasePath *string `json:"database_path,omitempty"`

	Plugins []PluginConfig `json:"plugins,omitempty"`
}

// PluginConfig names one kernel to benchmark. Exactly one of KernelPath and
// KernelID must be set.
type PluginConfig struct {
	Name       *string `json:"name,omitempty"`
	KernelPath *string `json:"kernel_path,omitempty"`
	KernelID   *string `json:"kernel_id,omitempty"`

	// Params is the kernel-parameter blob, passed through verbatim.
	Params json.RawMessage `json:"params,omitempty"`

	// CalibrationPath names a previously produced calibration artifact
	// file to hand the kernel at initialization.
	CalibrationPath *string `json:"calibration_path,omitempty"`

	RT *RTConfig `json:"rt,omitempty"`
}

// RTConfig is the per-plugin real-time policy request.
type RTConfig struct {
	Class        *string `json:"class,omitempty"` // "fifo" or "rr"
	Priority     *int    `json:"priority,omitempty"`
	AffinityMask *uint64 `json:"affinity_mask,omitempty"`
	DeadlineNs   *int64  `json:"deadline_ns,omitempty"`
}

// Load reads and validates a session config from a JSON file.
func Load(path string) (*SessionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &SessionConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and cross-field consistency. Geometry
// detail (one-hot data type, hop vs window) is rechecked by the ABI config.
func (c *SessionConfig) Validate() error {
	if c.SampleRateHz == nil || *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz is required and must be positive")
	}
	if c.WindowLen == nil || *c.WindowLen <= 0 {
		return fmt.Errorf("window_len is required and must be positive")
	}
	if c.HopLen == nil || *c.HopLen <= 0 || *c.HopLen > *c.WindowLen {
		return fmt.Errorf("hop_len is required and must be in 1..window_len")
	}
	if c.Channels == nil || *c.Channels <= 0 {
		return fmt.Errorf("channels is required and must be positive")
	}
	if c.DataType != nil {
		if _, err := abi.ParseDataType(*c.DataType); err != nil {
			return err
		}
	}
	if c.DatasetPath == nil || *c.DatasetPath == "" {
		return fmt.Errorf("dataset_path is required")
	}
	if c.Passes != nil && *c.Passes <= 0 {
		return fmt.Errorf("passes must be positive when set")
	}
	if c.WarmupWindows != nil && *c.WarmupWindows < 0 {
		return fmt.Errorf("warmup_windows must not be negative")
	}
	if len(c.Plugins) == 0 {
		return fmt.Errorf("at least one plugin entry is required")
	}
	for i := range c.Plugins {
		if err := c.Plugins[i].validate(); err != nil {
			return fmt.Errorf("plugin %d: %w", i, err)
		}
	}
	return nil
}

func (p *PluginConfig) validate() error {
	if p.Name == nil || *p.Name == "" {
		return fmt.Errorf("name is required")
	}
	hasPath := p.KernelPath != nil && *p.KernelPath != ""
	hasID := p.KernelID != nil && *p.KernelID != ""
	if hasPath == hasID {
		return fmt.Errorf("exactly one of kernel_path and kernel_id must be set")
	}
	if p.RT != nil && p.RT.Class != nil {
		switch *p.RT.Class {
		case "fifo", "rr":
		default:
			return fmt.Errorf("rt class must be \"fifo\" or \"rr\", got %q", *p.RT.Class)
		}
	}
	return nil
}

// Defaults for omitted fields.

func (c *SessionConfig) GetDataType() abi.DataType {
	if c.DataType == nil {
		return abi.Float32
	}
	d, _ := abi.ParseDataType(*c.DataType)
	return d
}

func (c *SessionConfig) GetAllowInPlace() bool {
	return c.AllowInPlace != nil && *c.AllowInPlace
}

func (c *SessionConfig) GetWarmupWindows() int {
	if c.WarmupWindows == nil {
		return 0
	}
	return *c.WarmupWindows
}

func (c *SessionConfig) GetPasses() int {
	if c.Passes == nil {
		return 1
	}
	return *c.Passes
}

func (c *SessionConfig) GetTelemetryDir() string {
	if c.TelemetryDir == nil {
		return "."
	}
	return *c.TelemetryDir
}

func (c *SessionConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return ""
	}
	return *c.DatabasePath
}

// Plans expands the session into one scheduler plan per plugin, loading each
// plugin's calibration artifact (if any) from disk.
func (c *SessionConfig) Plans() ([]*sched.Plan, error) {
	plans := make([]*sched.Plan, 0, len(c.Plugins))
	for i := range c.Plugins {
		p := &c.Plugins[i]
		abiCfg := &abi.Config{
			SampleRateHz: *c.SampleRateHz,
			WindowLen:    *c.WindowLen,
			HopLen:       *c.HopLen,
			Channels:     *c.Channels,
			DataType:     c.GetDataType(),
			AllowInPlace: c.GetAllowInPlace(),
			Params:       []byte(p.Params),
		}
		if p.CalibrationPath != nil && *p.CalibrationPath != "" {
			blob, err := os.ReadFile(*p.CalibrationPath)
			if err != nil {
				return nil, fmt.Errorf("plugin %s: read calibration artifact: %w", *p.Name, err)
			}
			abiCfg.Calibration = blob
		}
		if err := abiCfg.Validate(); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", *p.Name, err)
		}
		plan := &sched.Plan{
			Name:   *p.Name,
			Config: abiCfg,
			Warmup: c.GetWarmupWindows(),
			Passes: c.GetPasses(),
		}
		if p.KernelPath != nil {
			plan.KernelPath = *p.KernelPath
		}
		if p.KernelID != nil {
			plan.KernelID = *p.KernelID
		}
		if rt := p.RT; rt != nil {
			if rt.Class != nil {
				plan.Policy.Class = *rt.Class
			}
			if rt.Priority != nil {
				plan.Policy.Priority = *rt.Priority
			}
			if rt.AffinityMask != nil {
				plan.Policy.Affinity = *rt.AffinityMask
			}
			if rt.DeadlineNs != nil {
				plan.Policy.DeadlineNs = *rt.DeadlineNs
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
