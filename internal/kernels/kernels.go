// Package kernels holds the built-in reference kernels, registered under
// compiled-in registry ids:
//
//	passthrough  copies input to output unchanged
//	notch        per-channel biquad notch filter
//	car          weighted common-average reference, with calibration
//	goertzel     per-band, per-channel bandpower via the Goertzel recurrence
//	welch        per-channel averaged-periodogram power spectral density
//
// All DSP kernels operate on float32 samples interleaved by frame: sample s,
// channel c lives at element s*C + c. Non-finite samples are treated as zero
// inside accumulations so one bad electrode cannot poison a whole window.
package kernels

import (
	"fmt"
	"math"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/plugin"
)

func init() {
	plugin.Register("passthrough", func() abi.Kernel { return &Passthrough{} })
	plugin.Register("notch", func() abi.Kernel { return &Notch{} })
	plugin.Register("car", func() abi.Kernel { return &CAR{} })
	plugin.Register("goertzel", func() abi.Kernel { return &Goertzel{} })
	plugin.Register("welch", func() abi.Kernel { return &Welch{} })
}

// requireFloat32 rejects element types the DSP kernels do not implement.
func requireFloat32(cfg *abi.Config) error {
	if cfg.DataType != abi.Float32 {
		return fmt.Errorf("kernel supports f32 only, got %s", cfg.DataType)
	}
	return nil
}

// finite returns v, or zero when v is NaN or infinite.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
