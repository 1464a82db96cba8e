// Package replay streams a pre-recorded dataset as fixed-size hop chunks at
// true sample-rate cadence. The emission loop runs on its own thread of
// control; the only state crossing the thread boundary is the chunk buffer
// (single-producer/single-consumer by construction) and an atomic stop flag.
package replay

import (
	"fmt"
	"io"
	"os"
)

// Source supplies raw interleaved sample frames. Implementations treat the
// dataset as an infinite loop: ReadHop wraps to the beginning at end of
// data, so long benchmark runs are independent of dataset length.
type Source interface {
	// ReadHop fills dst completely with the next hop chunk.
	ReadHop(dst []byte) error

	// Frames returns the number of sample frames in one full pass of the
	// dataset.
	Frames() int64

	// Close releases the underlying data.
	Close() error
}

// FileSource reads raw little-endian interleaved samples from a dataset
// file, looping at EOF.
type FileSource struct {
	f          *os.File
	sizeBytes  int64
	frameBytes int
}

// NewFileSource opens path as a sample dataset. frameBytes is the byte size
// of one frame (channels times element size); the file length must be a
// nonzero multiple of it.
func NewFileSource(path string, frameBytes int) (*FileSource, error) {
	if frameBytes <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameBytes)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	if info.Size() == 0 || info.Size()%int64(frameBytes) != 0 {
		f.Close()
		return nil, fmt.Errorf("dataset %s is %d bytes, not a nonzero multiple of the %d-byte frame",
			path, info.Size(), frameBytes)
	}
	return &FileSource{f: f, sizeBytes: info.Size(), frameBytes: frameBytes}, nil
}

// Frames returns the number of frames in one pass of the file.
func (s *FileSource) Frames() int64 {
	return s.sizeBytes / int64(s.frameBytes)
}

// ReadHop fills dst, seeking back to the start of the file at EOF so the
// stream never terminates.
func (s *FileSource) ReadHop(dst []byte) error {
	filled := 0
	for filled < len(dst) {
		n, err := s.f.Read(dst[filled:])
		filled += n
		switch {
		case err == io.EOF:
			if _, err := s.f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind dataset: %w", err)
			}
		case err != nil:
			return fmt.Errorf("read dataset: %w", err)
		}
	}
	return nil
}

// Close closes the dataset file.
func (s *FileSource) Close() error { return s.f.Close() }

// MemorySource serves a dataset held in memory, looping at the end. Used by
// tests and the cadence-check tool.
type MemorySource struct {
	data       []byte
	frameBytes int
	off        int
}

// NewMemorySource wraps data, which must be a nonzero multiple of frameBytes
// long.
func NewMemorySource(data []byte, frameBytes int) (*MemorySource, error) {
	if frameBytes <= 0 || len(data) == 0 || len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("dataset of %d bytes is not a nonzero multiple of the %d-byte frame",
			len(data), frameBytes)
	}
	return &MemorySource{data: data, frameBytes: frameBytes}, nil
}

// Frames returns the number of frames in one pass.
func (s *MemorySource) Frames() int64 {
	return int64(len(s.data) / s.frameBytes)
}

// ReadHop fills dst, wrapping at the end of the buffer.
func (s *MemorySource) ReadHop(dst []byte) error {
	filled := 0
	for filled < len(dst) {
		n := copy(dst[filled:], s.data[s.off:])
		filled += n
		s.off += n
		if s.off == len(s.data) {
			s.off = 0
		}
	}
	return nil
}

// Close is a no-op for in-memory data.
func (s *MemorySource) Close() error { return nil }
