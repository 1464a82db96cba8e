// Package abi defines the binary contract between the CORTEX harness and
// signal-processing kernels: the element-type selector, the versioned
// runtime configuration record, capability flags, and the kernel lifecycle.
//
// Records exchanged across the contract boundary are append-only and carry
// a version number and a total-size field as their first two fields so that
// a newer harness talking to an older kernel (or vice versa) detects the
// mismatch instead of reading past the end of a shorter record.
package abi

import "fmt"

// DataType selects the element type of sample buffers. Exactly one bit must
// be set; zero or multiple bits is a hard initialization error.
type DataType uint32

const (
	Float32 DataType = 1 << iota
	Float64
	Int16
	Int32
)

// OneHot reports whether exactly one bit of d is set.
func (d DataType) OneHot() bool {
	return d != 0 && d&(d-1) == 0
}

// Size returns the element size in bytes, or 0 if d is not one-hot.
func (d DataType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Int16:
		return 2
	default:
		return 0
	}
}

// String returns the short name used in configuration files.
func (d DataType) String() string {
	switch d {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	default:
		return fmt.Sprintf("DataType(0x%x)", uint32(d))
	}
}

// ParseDataType maps a configuration-file name to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "f32", "float32":
		return Float32, nil
	case "f64", "float64":
		return Float64, nil
	case "i16", "int16":
		return Int16, nil
	case "i32", "int32":
		return Int32, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}
