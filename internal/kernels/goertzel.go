package kernels

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cortex-data/cortex/internal/abi"
)

// Band is one frequency band of interest.
type Band struct {
	LowHz  float64 `json:"low_hz"`
	HighHz float64 `json:"high_hz"`
}

// GoertzelParams lists the bands to evaluate.
type GoertzelParams struct {
	Bands []Band `json:"bands"`
}

// Goertzel computes per-band, per-channel power using one Goertzel
// recurrence per band, evaluated at the band's center frequency. Output is
// band-major: element b*C + c is band b's power on channel c.
type Goertzel struct {
	channels  int
	windowLen int
	coeffs    []float64 // 2*cos(w) per band
}

func (k *Goertzel) Init(cfg *abi.Config) (abi.InitResult, error) {
	if err := requireFloat32(cfg); err != nil {
		return abi.InitResult{}, err
	}
	var p GoertzelParams
	if len(cfg.Params) == 0 {
		return abi.InitResult{}, fmt.Errorf("goertzel requires a bands parameter")
	}
	if err := json.Unmarshal(cfg.Params, &p); err != nil {
		return abi.InitResult{}, fmt.Errorf("goertzel params: %w", err)
	}
	if len(p.Bands) == 0 {
		return abi.InitResult{}, fmt.Errorf("goertzel requires at least one band")
	}
	nyquist := cfg.SampleRateHz / 2
	k.coeffs = make([]float64, len(p.Bands))
	for i, b := range p.Bands {
		if b.LowHz < 0 || b.HighHz <= b.LowHz || b.HighHz > nyquist {
			return abi.InitResult{}, fmt.Errorf("band %d [%g, %g] Hz is inconsistent (nyquist %g)",
				i, b.LowHz, b.HighHz, nyquist)
		}
		center := (b.LowHz + b.HighHz) / 2
		k.coeffs[i] = 2 * math.Cos(2*math.Pi*center/cfg.SampleRateHz)
	}
	k.channels = cfg.Channels
	k.windowLen = cfg.WindowLen
	return abi.InitResult{
		OutputWindowLen: len(p.Bands),
		OutputChannels:  cfg.Channels,
	}, nil
}

func (k *Goertzel) Process(in, out []byte) {
	src := abi.Float32Slice(in)
	dst := abi.Float32Slice(out)
	for b, coeff := range k.coeffs {
		for c := 0; c < k.channels; c++ {
			var s1, s2 float64
			for s := 0; s < k.windowLen; s++ {
				s0 := finite(float64(src[s*k.channels+c])) + coeff*s1 - s2
				s2, s1 = s1, s0
			}
			power := s1*s1 + s2*s2 - coeff*s1*s2
			dst[b*k.channels+c] = float32(power / float64(k.windowLen))
		}
	}
}

func (k *Goertzel) Close() error { return nil }
