package abi

import "unsafe"

// Typed views over raw sample buffers. Windows cross the contract boundary
// as byte slices so the framework stays element-type agnostic; kernels
// reinterpret them through these helpers without copying, which keeps the
// hot path allocation-free. The byte length must be a multiple of the
// element size; a misaligned buffer indicates a sizing bug upstream and
// panics rather than silently truncating.

// Float32Slice reinterprets b as a []float32 sharing b's storage.
func Float32Slice(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	if len(b)%4 != 0 {
		panic("abi: buffer length not a multiple of 4")
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Float64Slice reinterprets b as a []float64 sharing b's storage.
func Float64Slice(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	if len(b)%8 != 0 {
		panic("abi: buffer length not a multiple of 8")
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// Int16Slice reinterprets b as a []int16 sharing b's storage.
func Int16Slice(b []byte) []int16 {
	if len(b) == 0 {
		return nil
	}
	if len(b)%2 != 0 {
		panic("abi: buffer length not a multiple of 2")
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// Int32Slice reinterprets b as a []int32 sharing b's storage.
func Int32Slice(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	if len(b)%4 != 0 {
		panic("abi: buffer length not a multiple of 4")
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b[0])), len(b)/4)
}
