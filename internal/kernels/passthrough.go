package kernels

import (
	"github.com/cortex-data/cortex/internal/abi"
)

// Passthrough copies each window unchanged. It works for every element type
// and is the baseline for measuring pure harness overhead.
type Passthrough struct{}

func (k *Passthrough) Init(cfg *abi.Config) (abi.InitResult, error) {
	return abi.InitResult{
		OutputWindowLen: cfg.WindowLen,
		OutputChannels:  cfg.Channels,
	}, nil
}

func (k *Passthrough) Process(in, out []byte) { copy(out, in) }

func (k *Passthrough) Close() error { return nil }
