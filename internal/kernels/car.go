package kernels

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cortex-data/cortex/internal/abi"
)

// carArtifactVersion tags the calibration payload layout: one little-endian
// float64 weight per channel, normalized to sum 1.
const carArtifactVersion = 1

// CAR subtracts a weighted common-average reference from every channel.
// Uncalibrated it uses uniform weights; Calibrate learns inverse-variance
// weights so noisy channels contribute less to the reference.
type CAR struct {
	channels int
	weights  []float64
}

func (k *CAR) Init(cfg *abi.Config) (abi.InitResult, error) {
	if err := requireFloat32(cfg); err != nil {
		return abi.InitResult{}, err
	}
	k.channels = cfg.Channels
	k.weights = make([]float64, cfg.Channels)
	if len(cfg.Calibration) == 0 {
		for c := range k.weights {
			k.weights[c] = 1 / float64(cfg.Channels)
		}
	} else if err := k.decodeWeights(cfg.Calibration); err != nil {
		return abi.InitResult{}, err
	}
	return abi.InitResult{
		OutputWindowLen: cfg.WindowLen,
		OutputChannels:  cfg.Channels,
		Caps:            abi.CapCalibrate,
	}, nil
}

func (k *CAR) decodeWeights(blob []byte) error {
	if want := k.channels * 8; len(blob) != want {
		return fmt.Errorf("car calibration payload is %d bytes, want %d for %d channels",
			len(blob), want, k.channels)
	}
	for c := 0; c < k.channels; c++ {
		k.weights[c] = math.Float64frombits(binary.LittleEndian.Uint64(blob[c*8:]))
		if math.IsNaN(k.weights[c]) || k.weights[c] < 0 {
			return fmt.Errorf("car calibration weight %d is invalid: %g", c, k.weights[c])
		}
	}
	if sum := floats.Sum(k.weights); math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("car calibration weights sum to %g, want 1", sum)
	}
	return nil
}

func (k *CAR) Process(in, out []byte) {
	src := abi.Float32Slice(in)
	dst := abi.Float32Slice(out)
	for s := 0; s < len(src)/k.channels; s++ {
		row := s * k.channels
		var ref float64
		for c := 0; c < k.channels; c++ {
			ref += k.weights[c] * finite(float64(src[row+c]))
		}
		for c := 0; c < k.channels; c++ {
			dst[row+c] = float32(finite(float64(src[row+c])) - ref)
		}
	}
}

// Calibrate learns inverse-variance channel weights from a batch of windows.
// Deterministic for a fixed input; NaN samples are treated as zero.
func (k *CAR) Calibrate(cfg *abi.Config, windows [][]byte) (*abi.Artifact, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("car calibration needs at least one window")
	}
	samplesPerWindow := cfg.WindowLen
	series := make([]float64, len(windows)*samplesPerWindow)
	weights := make([]float64, cfg.Channels)
	for c := 0; c < cfg.Channels; c++ {
		i := 0
		for _, w := range windows {
			src := abi.Float32Slice(w)
			for s := 0; s < samplesPerWindow; s++ {
				series[i] = finite(float64(src[s*cfg.Channels+c]))
				i++
			}
		}
		v := stat.Variance(series, nil)
		if v <= 0 || math.IsNaN(v) {
			// A flat channel carries no noise information; give it the
			// same weight as an average one by pinning variance to 1.
			v = 1
		}
		weights[c] = 1 / v
	}
	floats.Scale(1/floats.Sum(weights), weights)

	payload := make([]byte, cfg.Channels*8)
	for c, w := range weights {
		binary.LittleEndian.PutUint64(payload[c*8:], math.Float64bits(w))
	}
	return &abi.Artifact{Version: carArtifactVersion, Payload: payload}, nil
}

func (k *CAR) Close() error { return nil }
