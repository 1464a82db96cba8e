package abi

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Runtime configuration record layout (little-endian, append-only).
// The version and total-size fields always occupy the first eight bytes;
// every field after them may only ever be appended to, never moved.
const (
	ConfigVersion = 1 // current record version

	configOffVersion    = 0  // u32 record version
	configOffSize       = 4  // u32 total record size in bytes
	configOffSampleRate = 8  // f64 sample rate in Hz
	configOffWindow     = 16 // u32 window length in samples
	configOffHop        = 20 // u32 hop length in samples
	configOffChannels   = 24 // u32 channel count
	configOffDataType   = 28 // u32 one-hot element type selector
	configOffInPlace    = 32 // u8  in-place processing permitted
	configOffParamsLen  = 33 // u32 kernel parameter blob length
	configFixedSize     = 37 // bytes before the variable-length tail

	// maxBlobLen bounds decoded blob lengths before any allocation is
	// sized from them (transport errors must be caught from length
	// prefixes, not by trapping on a huge make).
	maxBlobLen = 64 << 20
)

// Config is the negotiated runtime configuration for one session.
type Config struct {
	SampleRateHz float64  // dataset sample rate
	WindowLen    int      // W, samples per window per channel
	HopLen       int      // H, samples advanced between windows
	Channels     int      // C, channel count
	DataType     DataType // one-hot element type
	AllowInPlace bool     // kernel may write output over input
	Params       []byte   // opaque kernel-specific parameter blob
	Calibration  []byte   // optional calibration artifact payload
}

// Validate checks the invariants every session configuration must satisfy.
func (c *Config) Validate() error {
	if !c.DataType.OneHot() {
		return fmt.Errorf("data type 0x%x is not one-hot", uint32(c.DataType))
	}
	if c.WindowLen <= 0 {
		return fmt.Errorf("window length must be positive, got %d", c.WindowLen)
	}
	if c.HopLen <= 0 || c.HopLen > c.WindowLen {
		return fmt.Errorf("hop length must be in 1..window (%d), got %d", c.WindowLen, c.HopLen)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", c.Channels)
	}
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", c.SampleRateHz)
	}
	return nil
}

// WindowBytes returns the byte size of one full window (W x C elements),
// or 0 if the element type is not one-hot.
func (c *Config) WindowBytes() int {
	return c.WindowLen * c.Channels * c.DataType.Size()
}

// HopBytes returns the byte size of one hop chunk (H x C elements),
// or 0 if the element type is not one-hot.
func (c *Config) HopBytes() int {
	return c.HopLen * c.Channels * c.DataType.Size()
}

// Encode serializes c into the versioned record form carried on the wire
// and handed to kernel initialization.
func (c *Config) Encode() []byte {
	size := configFixedSize + len(c.Params) + 4 + len(c.Calibration)
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[configOffVersion:], ConfigVersion)
	binary.LittleEndian.PutUint32(buf[configOffSize:], uint32(size))
	binary.LittleEndian.PutUint64(buf[configOffSampleRate:], math.Float64bits(c.SampleRateHz))
	binary.LittleEndian.PutUint32(buf[configOffWindow:], uint32(c.WindowLen))
	binary.LittleEndian.PutUint32(buf[configOffHop:], uint32(c.HopLen))
	binary.LittleEndian.PutUint32(buf[configOffChannels:], uint32(c.Channels))
	binary.LittleEndian.PutUint32(buf[configOffDataType:], uint32(c.DataType))
	if c.AllowInPlace {
		buf[configOffInPlace] = 1
	}
	binary.LittleEndian.PutUint32(buf[configOffParamsLen:], uint32(len(c.Params)))

	off := configFixedSize
	off += copy(buf[off:], c.Params)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Calibration)))
	off += 4
	copy(buf[off:], c.Calibration)

	return buf
}

// DecodeConfig parses a versioned configuration record. The version and
// declared size are validated before any field beyond the common prefix is
// touched; bytes past the declared size are ignored so a shorter consumer
// can safely read a longer producer's record.
func DecodeConfig(data []byte) (*Config, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("config record too short for handshake: %d bytes", len(data))
	}
	version := binary.LittleEndian.Uint32(data[configOffVersion:])
	size := binary.LittleEndian.Uint32(data[configOffSize:])
	if version == 0 || version > ConfigVersion {
		return nil, fmt.Errorf("unsupported config record version %d (max %d)", version, ConfigVersion)
	}
	if int(size) < configFixedSize+4 {
		return nil, fmt.Errorf("config record declares %d bytes, need at least %d", size, configFixedSize+4)
	}
	if int(size) > len(data) {
		return nil, fmt.Errorf("config record declares %d bytes but only %d present", size, len(data))
	}
	rec := data[:size]

	c := &Config{
		SampleRateHz: math.Float64frombits(binary.LittleEndian.Uint64(rec[configOffSampleRate:])),
		WindowLen:    int(binary.LittleEndian.Uint32(rec[configOffWindow:])),
		HopLen:       int(binary.LittleEndian.Uint32(rec[configOffHop:])),
		Channels:     int(binary.LittleEndian.Uint32(rec[configOffChannels:])),
		DataType:     DataType(binary.LittleEndian.Uint32(rec[configOffDataType:])),
		AllowInPlace: rec[configOffInPlace] != 0,
	}

	paramsLen := binary.LittleEndian.Uint32(rec[configOffParamsLen:])
	if paramsLen > maxBlobLen {
		return nil, fmt.Errorf("config params blob length %d exceeds limit", paramsLen)
	}
	off := configFixedSize
	if off+int(paramsLen)+4 > len(rec) {
		return nil, fmt.Errorf("config params blob (%d bytes) overruns record", paramsLen)
	}
	if paramsLen > 0 {
		c.Params = append([]byte(nil), rec[off:off+int(paramsLen)]...)
	}
	off += int(paramsLen)

	calibLen := binary.LittleEndian.Uint32(rec[off:])
	off += 4
	if calibLen > maxBlobLen {
		return nil, fmt.Errorf("config calibration blob length %d exceeds limit", calibLen)
	}
	if off+int(calibLen) > len(rec) {
		return nil, fmt.Errorf("config calibration blob (%d bytes) overruns record", calibLen)
	}
	if calibLen > 0 {
		c.Calibration = append([]byte(nil), rec[off:off+int(calibLen)]...)
	}

	return c, nil
}
