// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package peak

import (
	"fmt"
	"sync"
)

// Buffer retains the best scalar value seen since it was last drained.
type Buffer[T Number] struct {
	mu      sync.Mutex
	pol     Policy
	peak    T
	reset   T
	updated bool
}

// NewBuffer returns a reset scalar buffer.
func NewBuffer[T Number](pol Policy, reset T) *Buffer[T] {
	buf := &Buffer[T]{pol: pol, reset: reset}
	buf.Reset()
	return buf
}

// Policy returns the comparison policy of the buffer.
func (buf *Buffer[T]) Policy() Policy {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.pol
}

// Reset restores the reset value and clears the updated flag.
func (buf *Buffer[T]) Reset() {
	buf.mu.Lock()
	buf.peak = buf.reset
	buf.updated = false
	buf.mu.Unlock()
}

// SetResetValue configures the value restored by Reset.
func (buf *Buffer[T]) SetResetValue(v T) {
	buf.mu.Lock()
	buf.reset = v
	buf.mu.Unlock()
}

// SetPolicy switches the capture polarity, installs the new reset value
// and resets the buffer.
func (buf *Buffer[T]) SetPolicy(pol Policy, reset T) {
	buf.mu.Lock()
	buf.pol = pol
	buf.reset = reset
	buf.peak = reset
	buf.updated = false
	buf.mu.Unlock()
}

// CatchPeak stores v if it strictly beats the held peak.
// CatchPeak reports whether v was stored.
func (buf *Buffer[T]) CatchPeak(v T) bool {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	if !Wins(buf.pol, v, buf.peak) {
		return false
	}
	buf.peak = v
	buf.updated = true
	return true
}

// PeakAndReset returns the held peak, resets the buffer and reports
// whether a peak was caught since the previous drain.
func (buf *Buffer[T]) PeakAndReset() (T, bool) {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	v, ok := buf.peak, buf.updated
	buf.peak = buf.reset
	buf.updated = false
	return v, ok
}

// Peak returns the held peak without resetting the buffer.
func (buf *Buffer[T]) Peak() T {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.peak
}

// ArrayBuffer retains, per position, the best value seen since it was
// last drained. Positions never interact.
type ArrayBuffer[T Number] struct {
	mu      sync.Mutex
	pol     Policy
	peak    []T
	reset   []T
	updated bool
}

// NewArrayBuffer returns a reset buffer of n positions, all sharing the
// same reset value.
func NewArrayBuffer[T Number](pol Policy, n int, reset T) *ArrayBuffer[T] {
	buf := &ArrayBuffer[T]{
		pol:   pol,
		peak:  make([]T, n),
		reset: make([]T, n),
	}
	for i := range buf.reset {
		buf.reset[i] = reset
	}
	buf.Reset()
	return buf
}

// Len returns the number of positions.
func (buf *ArrayBuffer[T]) Len() int { return len(buf.peak) }

func (buf *ArrayBuffer[T]) Policy() Policy {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.pol
}

// Reset restores the reset values and clears the updated flag.
func (buf *ArrayBuffer[T]) Reset() {
	buf.mu.Lock()
	buf.resetLocked()
	buf.mu.Unlock()
}

func (buf *ArrayBuffer[T]) resetLocked() {
	copy(buf.peak, buf.reset)
	buf.updated = false
}

// SetResetValues configures the per-position values restored by Reset.
func (buf *ArrayBuffer[T]) SetResetValues(vs []T) {
	buf.check(len(vs))
	buf.mu.Lock()
	copy(buf.reset, vs)
	buf.mu.Unlock()
}

// SetPolicy switches the capture polarity, installs reset as the reset
// value of every position and resets the buffer.
func (buf *ArrayBuffer[T]) SetPolicy(pol Policy, reset T) {
	buf.mu.Lock()
	buf.pol = pol
	for i := range buf.reset {
		buf.reset[i] = reset
	}
	buf.resetLocked()
	buf.mu.Unlock()
}

// CatchPeak compares every position of vs with the held peak at the same
// position. It reports whether at least one position was updated.
func (buf *ArrayBuffer[T]) CatchPeak(vs []T) bool {
	buf.check(len(vs))

	buf.mu.Lock()
	defer buf.mu.Unlock()

	caught := false
	for i, v := range vs {
		if Wins(buf.pol, v, buf.peak[i]) {
			buf.peak[i] = v
			caught = true
		}
	}
	if caught {
		buf.updated = true
	}
	return caught
}

// PeakAndReset copies the held peaks into dst, resets the buffer and
// reports whether any peak was caught since the previous drain.
func (buf *ArrayBuffer[T]) PeakAndReset(dst []T) bool {
	buf.check(len(dst))

	buf.mu.Lock()
	defer buf.mu.Unlock()

	copy(dst, buf.peak)
	ok := buf.updated
	buf.resetLocked()
	return ok
}

// Peak copies the held peaks into dst without resetting the buffer.
func (buf *ArrayBuffer[T]) Peak(dst []T) {
	buf.check(len(dst))

	buf.mu.Lock()
	copy(dst, buf.peak)
	buf.mu.Unlock()
}

func (buf *ArrayBuffer[T]) check(n int) {
	if n != len(buf.peak) {
		panic(fmt.Errorf("peak: invalid array length (got=%d, want=%d)", n, len(buf.peak)))
	}
}

// SnapshotBuffer retains the data array captured together with the best
// representative peak seen since it was last drained.
// The array is never compared position by position: it rides along with
// its representative peak.
type SnapshotBuffer[T Number] struct {
	mu      sync.Mutex
	pol     Policy
	peak    T
	reset   T
	data    []T
	rdata   []T // reset data
	updated bool
}

// NewSnapshotBuffer returns a reset snapshot buffer holding n samples.
func NewSnapshotBuffer[T Number](pol Policy, n int, reset T) *SnapshotBuffer[T] {
	buf := &SnapshotBuffer[T]{
		pol:   pol,
		reset: reset,
		data:  make([]T, n),
		rdata: make([]T, n),
	}
	buf.Reset()
	return buf
}

// Len returns the number of samples of a snapshot.
func (buf *SnapshotBuffer[T]) Len() int { return len(buf.data) }

func (buf *SnapshotBuffer[T]) Policy() Policy {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.pol
}

// Reset restores the reset peak and reset data, and clears the updated flag.
func (buf *SnapshotBuffer[T]) Reset() {
	buf.mu.Lock()
	buf.resetLocked()
	buf.mu.Unlock()
}

func (buf *SnapshotBuffer[T]) resetLocked() {
	buf.peak = buf.reset
	copy(buf.data, buf.rdata)
	buf.updated = false
}

// SetResetValue configures the representative peak restored by Reset.
func (buf *SnapshotBuffer[T]) SetResetValue(v T) {
	buf.mu.Lock()
	buf.reset = v
	buf.mu.Unlock()
}

// SetResetData configures the data array restored by Reset.
func (buf *SnapshotBuffer[T]) SetResetData(vs []T) {
	buf.check(len(vs))
	buf.mu.Lock()
	copy(buf.rdata, vs)
	buf.mu.Unlock()
}

// SetPolicy switches the capture polarity, installs the new reset value
// and resets the buffer.
func (buf *SnapshotBuffer[T]) SetPolicy(pol Policy, reset T) {
	buf.mu.Lock()
	buf.pol = pol
	buf.reset = reset
	buf.resetLocked()
	buf.mu.Unlock()
}

// CatchPeak replaces the held snapshot with (peak, data) if peak strictly
// beats the held representative peak.
func (buf *SnapshotBuffer[T]) CatchPeak(peak T, data []T) bool {
	buf.check(len(data))

	buf.mu.Lock()
	defer buf.mu.Unlock()

	if !Wins(buf.pol, peak, buf.peak) {
		return false
	}
	buf.peak = peak
	copy(buf.data, data)
	buf.updated = true
	return true
}

// PeakAndReset copies the held snapshot into dst, returns its
// representative peak, resets the buffer and reports whether a snapshot
// was caught since the previous drain.
func (buf *SnapshotBuffer[T]) PeakAndReset(dst []T) (T, bool) {
	buf.check(len(dst))

	buf.mu.Lock()
	defer buf.mu.Unlock()

	v, ok := buf.peak, buf.updated
	copy(dst, buf.data)
	buf.resetLocked()
	return v, ok
}

// Peak copies the held snapshot into dst and returns its representative
// peak, without resetting the buffer.
func (buf *SnapshotBuffer[T]) Peak(dst []T) T {
	buf.check(len(dst))

	buf.mu.Lock()
	defer buf.mu.Unlock()

	copy(dst, buf.data)
	return buf.peak
}

func (buf *SnapshotBuffer[T]) check(n int) {
	if n != len(buf.data) {
		panic(fmt.Errorf("peak: invalid snapshot length (got=%d, want=%d)", n, len(buf.data)))
	}
}
