package kernels

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/cortex-data/cortex/internal/abi"
)

// WelchParams controls the averaged-periodogram geometry. Segments overlap
// by half their length.
type WelchParams struct {
	SegmentLen int `json:"segment_len"`
}

// Welch estimates per-channel power spectral density by averaging Hann
// windowed periodograms over 50%-overlapping segments. Output is bin-major:
// element k*C + c is frequency bin k's density on channel c, in units of
// power per Hz.
type Welch struct {
	channels   int
	windowLen  int
	segmentLen int
	hop        int
	segments   int
	bins       int
	scale      float64 // 1 / (fs * sum(hann^2) * segments)

	hann   []float64
	seg    []float64
	coeffs []complex128
	fft    *fourier.FFT
	acc    []float64 // per-bin accumulator, reused per channel
}

func (k *Welch) Init(cfg *abi.Config) (abi.InitResult, error) {
	if err := requireFloat32(cfg); err != nil {
		return abi.InitResult{}, err
	}
	p := WelchParams{SegmentLen: 64}
	if len(cfg.Params) > 0 {
		if err := json.Unmarshal(cfg.Params, &p); err != nil {
			return abi.InitResult{}, fmt.Errorf("welch params: %w", err)
		}
	}
	if p.SegmentLen > cfg.WindowLen {
		p.SegmentLen = cfg.WindowLen
	}
	if p.SegmentLen < 4 || p.SegmentLen%2 != 0 {
		return abi.InitResult{}, fmt.Errorf("welch segment length %d must be even and at least 4", p.SegmentLen)
	}

	k.channels = cfg.Channels
	k.windowLen = cfg.WindowLen
	k.segmentLen = p.SegmentLen
	k.hop = p.SegmentLen / 2
	k.segments = 1 + (cfg.WindowLen-p.SegmentLen)/k.hop
	k.bins = p.SegmentLen/2 + 1

	k.hann = make([]float64, p.SegmentLen)
	for i := range k.hann {
		k.hann[i] = 1
	}
	window.Hann(k.hann)
	var wsq float64
	for _, w := range k.hann {
		wsq += w * w
	}
	k.scale = 1 / (cfg.SampleRateHz * wsq * float64(k.segments))

	k.fft = fourier.NewFFT(p.SegmentLen)
	k.seg = make([]float64, p.SegmentLen)
	k.coeffs = make([]complex128, k.bins)
	k.acc = make([]float64, k.bins)

	return abi.InitResult{
		OutputWindowLen: k.bins,
		OutputChannels:  cfg.Channels,
	}, nil
}

func (k *Welch) Process(in, out []byte) {
	src := abi.Float32Slice(in)
	dst := abi.Float32Slice(out)
	for c := 0; c < k.channels; c++ {
		for i := range k.acc {
			k.acc[i] = 0
		}
		for seg := 0; seg < k.segments; seg++ {
			base := seg * k.hop
			for i := 0; i < k.segmentLen; i++ {
				k.seg[i] = k.hann[i] * finite(float64(src[(base+i)*k.channels+c]))
			}
			k.fft.Coefficients(k.coeffs, k.seg)
			for i, v := range k.coeffs {
				p := real(v)*real(v) + imag(v)*imag(v)
				if i != 0 && i != k.bins-1 {
					p *= 2 // fold negative frequencies
				}
				k.acc[i] += p
			}
		}
		for i, p := range k.acc {
			dst[i*k.channels+c] = float32(p * k.scale)
		}
	}
}

func (k *Welch) Close() error { return nil }
