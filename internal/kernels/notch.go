package kernels

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cortex-data/cortex/internal/abi"
)

// NotchParams selects the notch center frequency and quality factor.
type NotchParams struct {
	CenterHz float64 `json:"center_hz"`
	Q        float64 `json:"q"`
}

// Notch applies a second-order IIR notch (biquad, RBJ cookbook form) to
// every channel independently. Filter state is reset at each window so
// overlapping windows are filtered identically regardless of hop size.
type Notch struct {
	channels int
	// normalized coefficients
	b0, b1, b2, a1, a2 float64
	// per-channel delay lines, zeroed at each Process
	x1, x2, y1, y2 []float64
}

func (k *Notch) Init(cfg *abi.Config) (abi.InitResult, error) {
	if err := requireFloat32(cfg); err != nil {
		return abi.InitResult{}, err
	}
	p := NotchParams{CenterHz: 50, Q: 30}
	if len(cfg.Params) > 0 {
		if err := json.Unmarshal(cfg.Params, &p); err != nil {
			return abi.InitResult{}, fmt.Errorf("notch params: %w", err)
		}
	}
	nyquist := cfg.SampleRateHz / 2
	if p.CenterHz <= 0 || p.CenterHz >= nyquist {
		return abi.InitResult{}, fmt.Errorf("notch center %g Hz outside (0, %g)", p.CenterHz, nyquist)
	}
	if p.Q <= 0 {
		return abi.InitResult{}, fmt.Errorf("notch q must be positive, got %g", p.Q)
	}

	w0 := 2 * math.Pi * p.CenterHz / cfg.SampleRateHz
	alpha := math.Sin(w0) / (2 * p.Q)
	cosw0 := math.Cos(w0)
	a0 := 1 + alpha
	k.b0 = 1 / a0
	k.b1 = -2 * cosw0 / a0
	k.b2 = 1 / a0
	k.a1 = -2 * cosw0 / a0
	k.a2 = (1 - alpha) / a0

	k.channels = cfg.Channels
	k.x1 = make([]float64, cfg.Channels)
	k.x2 = make([]float64, cfg.Channels)
	k.y1 = make([]float64, cfg.Channels)
	k.y2 = make([]float64, cfg.Channels)
	return abi.InitResult{
		OutputWindowLen: cfg.WindowLen,
		OutputChannels:  cfg.Channels,
	}, nil
}

func (k *Notch) Process(in, out []byte) {
	src := abi.Float32Slice(in)
	dst := abi.Float32Slice(out)
	for c := 0; c < k.channels; c++ {
		k.x1[c], k.x2[c], k.y1[c], k.y2[c] = 0, 0, 0, 0
	}
	for s := 0; s < len(src)/k.channels; s++ {
		row := s * k.channels
		for c := 0; c < k.channels; c++ {
			x := finite(float64(src[row+c]))
			y := k.b0*x + k.b1*k.x1[c] + k.b2*k.x2[c] - k.a1*k.y1[c] - k.a2*k.y2[c]
			k.x2[c], k.x1[c] = k.x1[c], x
			k.y2[c], k.y1[c] = k.y1[c], y
			dst[row+c] = float32(y)
		}
	}
}

func (k *Notch) Close() error { return nil }
