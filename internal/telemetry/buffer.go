// Package telemetry accumulates one timing record per window invocation,
// losslessly and in invocation order, and serializes the result in tabular
// and line-delimited structured forms.
package telemetry

import (
	"fmt"
	"math"
	"unsafe"
)

// Record is an immutable snapshot of one window invocation's outcome.
// Timestamps are raw values in the session adapter's clock domain.
type Record struct {
	RunID        string  `json:"run_id"`
	Plugin       string  `json:"plugin"`
	Index        uint64  `json:"window_index"`
	Release      int64   `json:"release"`
	Deadline     int64   `json:"deadline"`
	Start        int64   `json:"start"`
	End          int64   `json:"end"`
	Missed       bool    `json:"missed"`
	WindowLen    int     `json:"window"`
	HopLen       int     `json:"hop"`
	Channels     int     `json:"channels"`
	SampleRateHz float64 `json:"sample_rate_hz"`
	Warmup       bool    `json:"warmup"`
	Repeat       int     `json:"repeat"`
}

var recordSize = int(unsafe.Sizeof(Record{}))

// ErrTooLarge is returned when growing the buffer would overflow element
// count or byte size arithmetic.
var ErrTooLarge = fmt.Errorf("telemetry: buffer growth would overflow size arithmetic")

// Buffer is an append-only, growable sequence of Records. Record order
// equals invocation order; growth preserves existing records.
//
// Growth is managed explicitly rather than with append so the doubled
// element count and the resulting byte size are both overflow-checked
// before any multiplication, as the contract requires.
type Buffer struct {
	storage []Record
	count   int
}

// NewBuffer allocates a buffer with the given initial capacity. A zero
// capacity is permitted and must not break subsequent growth.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("telemetry: negative capacity %d", capacity)
	}
	if err := checkByteSize(capacity); err != nil {
		return nil, err
	}
	b := &Buffer{}
	if capacity > 0 {
		b.storage = make([]Record, capacity)
	}
	return b, nil
}

func checkByteSize(count int) error {
	if count > math.MaxInt/recordSize {
		return ErrTooLarge
	}
	return nil
}

// grownCapacity computes the doubled capacity for the given current
// capacity, with explicit overflow checks on both the element count and the
// byte size it implies.
func grownCapacity(current int) (int, error) {
	next := 4
	if current > 0 {
		if current > math.MaxInt/2 {
			return 0, ErrTooLarge
		}
		next = current * 2
	}
	if err := checkByteSize(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Append adds one record. It fails only on a nil record or when growth
// would overflow size arithmetic; a deadline miss inside the record is data,
// never an error.
func (b *Buffer) Append(rec *Record) error {
	if b == nil {
		return fmt.Errorf("telemetry: append to nil buffer")
	}
	if rec == nil {
		return fmt.Errorf("telemetry: append of nil record")
	}
	if b.count == len(b.storage) {
		next, err := grownCapacity(len(b.storage))
		if err != nil {
			return err
		}
		grown := make([]Record, next)
		copy(grown, b.storage[:b.count])
		b.storage = grown
	}
	b.storage[b.count] = *rec
	b.count++
	return nil
}

// Len returns the number of records appended.
func (b *Buffer) Len() int { return b.count }

// Cap returns the current storage capacity in records.
func (b *Buffer) Cap() int { return len(b.storage) }

// At returns the i-th record in invocation order.
func (b *Buffer) At(i int) Record { return b.storage[i] }

// Records returns a read-only view of the appended records. The slice
// aliases buffer storage and is invalidated by the next Append or Free.
func (b *Buffer) Records() []Record { return b.storage[:b.count] }

// Free releases storage and resets count and capacity to zero. Safe on an
// already-empty buffer; the buffer remains usable for new appends.
func (b *Buffer) Free() {
	b.storage = nil
	b.count = 0
}
