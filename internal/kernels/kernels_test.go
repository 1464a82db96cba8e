package kernels

import (
	"bytes"
	"math"
	"testing"

	"github.com/cortex-data/cortex/internal/abi"
	"github.com/cortex-data/cortex/internal/plugin"
)

func f32Config(windowLen, channels int, rateHz float64) *abi.Config {
	return &abi.Config{
		SampleRateHz: rateHz,
		WindowLen:    windowLen,
		HopLen:       windowLen / 2,
		Channels:     channels,
		DataType:     abi.Float32,
	}
}

// makeWindow builds an interleaved float32 window from a per-sample,
// per-channel generator.
func makeWindow(windowLen, channels int, gen func(s, c int) float32) []byte {
	buf := make([]byte, windowLen*channels*4)
	dst := abi.Float32Slice(buf)
	for s := 0; s < windowLen; s++ {
		for c := 0; c < channels; c++ {
			dst[s*channels+c] = gen(s, c)
		}
	}
	return buf
}

func sine(freq, rate float64, amp float32) func(s, c int) float32 {
	return func(s, c int) float32 {
		return amp * float32(math.Sin(2*math.Pi*freq*float64(s)/rate))
	}
}

func mustInit(t *testing.T, k abi.Kernel, cfg *abi.Config) abi.InitResult {
	t.Helper()
	res, err := k.Init(cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return res
}

func rms(samples []float32) float64 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestRegistryHasBuiltins(t *testing.T) {
	for _, id := range []string{"passthrough", "notch", "car", "goertzel", "welch"} {
		if !plugin.Registered(id) {
			t.Errorf("kernel %q not registered", id)
		}
	}
}

func TestPassthroughAllTypes(t *testing.T) {
	for _, dt := range []abi.DataType{abi.Float32, abi.Float64, abi.Int16, abi.Int32} {
		cfg := f32Config(16, 2, 100)
		cfg.DataType = dt
		k := &Passthrough{}
		res := mustInit(t, k, cfg)
		if res.OutputWindowLen != 16 || res.OutputChannels != 2 {
			t.Fatalf("%s: init result %+v", dt, res)
		}
		in := make([]byte, cfg.WindowBytes())
		for i := range in {
			in[i] = byte(i)
		}
		out := make([]byte, cfg.WindowBytes())
		k.Process(in, out)
		if !bytes.Equal(in, out) {
			t.Errorf("%s: output differs from input", dt)
		}
	}
}

func TestNotchAttenuatesCenterFrequency(t *testing.T) {
	cfg := f32Config(512, 1, 500)
	cfg.Params = []byte(`{"center_hz": 50, "q": 5}`)
	k := &Notch{}
	mustInit(t, k, cfg)

	in := makeWindow(512, 1, sine(50, 500, 1))
	out := make([]byte, len(in))
	k.Process(in, out)

	// Skip the filter's settling transient; judge the steady-state half.
	steady := abi.Float32Slice(out)[256:]
	if got := rms(steady); got > 0.1 {
		t.Errorf("50 Hz tone rms after notch = %g, want < 0.1", got)
	}
}

func TestNotchPreservesPassband(t *testing.T) {
	cfg := f32Config(512, 1, 500)
	cfg.Params = []byte(`{"center_hz": 50, "q": 30}`)
	k := &Notch{}
	mustInit(t, k, cfg)

	in := makeWindow(512, 1, sine(10, 500, 1))
	out := make([]byte, len(in))
	k.Process(in, out)

	steady := abi.Float32Slice(out)[256:]
	if got := rms(steady); got < 0.6 {
		t.Errorf("10 Hz tone rms after 50 Hz notch = %g, want mostly preserved", got)
	}
}

func TestNotchDeterminism(t *testing.T) {
	cfg := f32Config(128, 4, 250)
	cfg.Params = []byte(`{"center_hz": 60, "q": 25}`)
	in := makeWindow(128, 4, func(s, c int) float32 {
		return float32(math.Sin(float64(s*7+c*13)) * 0.5)
	})

	outs := make([][]byte, 2)
	for i := range outs {
		k := &Notch{}
		mustInit(t, k, cfg)
		outs[i] = make([]byte, len(in))
		k.Process(in, outs[i])
		// Run twice on one instance too: state reset makes repeated
		// windows identical.
		again := make([]byte, len(in))
		k.Process(in, again)
		if !bytes.Equal(outs[i], again) {
			t.Fatal("same instance produced different output for the same window")
		}
	}
	if !bytes.Equal(outs[0], outs[1]) {
		t.Error("two instances with one config produced different output")
	}
}

func TestNotchRejections(t *testing.T) {
	cases := []struct {
		name string
		cfg  func() *abi.Config
	}{
		{"center above nyquist", func() *abi.Config {
			c := f32Config(128, 1, 100)
			c.Params = []byte(`{"center_hz": 60, "q": 30}`)
			return c
		}},
		{"zero q", func() *abi.Config {
			c := f32Config(128, 1, 100)
			c.Params = []byte(`{"center_hz": 25, "q": 0}`)
			return c
		}},
		{"malformed params", func() *abi.Config {
			c := f32Config(128, 1, 100)
			c.Params = []byte(`{"center_hz": `)
			return c
		}},
		{"unsupported data type", func() *abi.Config {
			c := f32Config(128, 1, 100)
			c.DataType = abi.Int16
			return c
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := (&Notch{}).Init(tc.cfg()); err == nil {
				t.Error("init accepted")
			}
		})
	}
}

func TestCARUniformZeroMean(t *testing.T) {
	cfg := f32Config(32, 8, 100)
	k := &CAR{}
	res := mustInit(t, k, cfg)
	if res.Caps&abi.CapCalibrate == 0 {
		t.Error("car does not advertise calibration")
	}

	in := makeWindow(32, 8, func(s, c int) float32 { return float32(c) + float32(s)*0.1 })
	out := make([]byte, len(in))
	k.Process(in, out)

	dst := abi.Float32Slice(out)
	for s := 0; s < 32; s++ {
		var mean float64
		for c := 0; c < 8; c++ {
			mean += float64(dst[s*8+c])
		}
		mean /= 8
		if math.Abs(mean) > 1e-4 {
			t.Fatalf("sample %d: channel mean after CAR = %g", s, mean)
		}
	}
}

func TestCARCalibrationDownweightsNoisyChannel(t *testing.T) {
	cfg := f32Config(64, 4, 100)
	k := &CAR{}
	mustInit(t, k, cfg)

	// Channel 3 is 100x noisier than the others.
	windows := make([][]byte, 8)
	for w := range windows {
		seed := w
		windows[w] = makeWindow(64, 4, func(s, c int) float32 {
			v := float32(math.Sin(float64(seed*64+s) * 0.7))
			if c == 3 {
				return v * 100
			}
			return v
		})
	}
	art, err := k.Calibrate(cfg, windows)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if art.Version != carArtifactVersion {
		t.Errorf("artifact version = %d", art.Version)
	}

	art2, err := k.Calibrate(cfg, windows)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(art.Payload, art2.Payload) {
		t.Error("calibration is not deterministic")
	}

	// Reinitialize with the artifact and confirm the noisy channel's
	// weight collapsed.
	cfg.Calibration = art.Payload
	k2 := &CAR{}
	mustInit(t, k2, cfg)
	if k2.weights[3] > k2.weights[0]/100 {
		t.Errorf("weights = %v, want channel 3 heavily downweighted", k2.weights)
	}
}

func TestCARRejectsCorruptArtifact(t *testing.T) {
	cfg := f32Config(64, 4, 100)
	cfg.Calibration = []byte{1, 2, 3} // wrong length
	if _, err := (&CAR{}).Init(cfg); err == nil {
		t.Error("truncated artifact accepted")
	}
}

func TestCARCalibrateToleratesNaN(t *testing.T) {
	cfg := f32Config(32, 2, 100)
	k := &CAR{}
	mustInit(t, k, cfg)
	nan := float32(math.NaN())
	windows := [][]byte{makeWindow(32, 2, func(s, c int) float32 {
		if s%3 == 0 {
			return nan
		}
		return float32(s)
	})}
	art, err := k.Calibrate(cfg, windows)
	if err != nil {
		t.Fatalf("Calibrate with NaN input: %v", err)
	}
	for c := 0; c < 2; c++ {
		w := math.Float64frombits(uint64(art.Payload[c*8]) | uint64(art.Payload[c*8+1])<<8 |
			uint64(art.Payload[c*8+2])<<16 | uint64(art.Payload[c*8+3])<<24 |
			uint64(art.Payload[c*8+4])<<32 | uint64(art.Payload[c*8+5])<<40 |
			uint64(art.Payload[c*8+6])<<48 | uint64(art.Payload[c*8+7])<<56)
		if math.IsNaN(w) {
			t.Errorf("weight %d is NaN", c)
		}
	}
}

func TestGoertzelBandPower(t *testing.T) {
	cfg := f32Config(160, 1, 160)
	cfg.Params = []byte(`{"bands": [{"low_hz": 8, "high_hz": 12}, {"low_hz": 30, "high_hz": 34}]}`)
	k := &Goertzel{}
	res := mustInit(t, k, cfg)
	if res.OutputWindowLen != 2 || res.OutputChannels != 1 {
		t.Fatalf("init result = %+v", res)
	}

	// A 10 Hz tone sits dead center in the first band.
	in := makeWindow(160, 1, sine(10, 160, 1))
	out := make([]byte, res.OutputWindowLen*res.OutputChannels*4)
	k.Process(in, out)

	powers := abi.Float32Slice(out)
	if powers[0] < 100*powers[1] {
		t.Errorf("band powers = %v, want 10 Hz band dominant", powers)
	}
}

func TestGoertzelRejections(t *testing.T) {
	cases := []struct {
		name   string
		params string
	}{
		{"no params", ``},
		{"empty bands", `{"bands": []}`},
		{"inverted bounds", `{"bands": [{"low_hz": 12, "high_hz": 8}]}`},
		{"above nyquist", `{"bands": [{"low_hz": 8, "high_hz": 200}]}`},
		{"negative low", `{"bands": [{"low_hz": -1, "high_hz": 8}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := f32Config(160, 1, 160)
			cfg.Params = []byte(tc.params)
			if _, err := (&Goertzel{}).Init(cfg); err == nil {
				t.Error("init accepted")
			}
		})
	}
}

func TestWelchPeakBin(t *testing.T) {
	cfg := f32Config(160, 2, 160)
	cfg.Params = []byte(`{"segment_len": 64}`)
	k := &Welch{}
	res := mustInit(t, k, cfg)
	if res.OutputWindowLen != 33 || res.OutputChannels != 2 {
		t.Fatalf("init result = %+v", res)
	}

	// 25 Hz lands exactly on bin 10 with a 64-sample segment at 160 Hz.
	in := makeWindow(160, 2, sine(25, 160, 1))
	out := make([]byte, res.OutputWindowLen*res.OutputChannels*4)
	k.Process(in, out)

	psd := abi.Float32Slice(out)
	for c := 0; c < 2; c++ {
		peak := 0
		for bin := 1; bin < 33; bin++ {
			if psd[bin*2+c] > psd[peak*2+c] {
				peak = bin
			}
		}
		if peak != 10 {
			t.Errorf("channel %d: peak at bin %d, want 10", c, peak)
		}
	}
}

func TestWelchDeterminismAndNaN(t *testing.T) {
	cfg := f32Config(160, 1, 160)
	nan := float32(math.NaN())
	in := makeWindow(160, 1, func(s, c int) float32 {
		if s == 17 {
			return nan
		}
		return float32(math.Sin(float64(s) * 0.3))
	})

	outs := make([][]byte, 2)
	for i := range outs {
		k := &Welch{}
		res := mustInit(t, k, cfg)
		outs[i] = make([]byte, res.OutputWindowLen*res.OutputChannels*4)
		k.Process(in, outs[i])
	}
	if !bytes.Equal(outs[0], outs[1]) {
		t.Error("two instances produced different output")
	}
	for i, v := range abi.Float32Slice(outs[0]) {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("bin %d not finite: %g", i, v)
		}
	}
}

func TestWelchRejectsOddSegment(t *testing.T) {
	cfg := f32Config(160, 1, 160)
	cfg.Params = []byte(`{"segment_len": 63}`)
	if _, err := (&Welch{}).Init(cfg); err == nil {
		t.Error("odd segment length accepted")
	}
}
