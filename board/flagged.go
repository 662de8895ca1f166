// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

// Flagged is a value paired with a dirty flag.
// The flag is set whenever the value changes and cleared by Take.
//
// Flagged is not safe for concurrent use: it is guarded by its owner.
type Flagged[T comparable] struct {
	v     T
	dirty bool
}

// NewFlagged returns a clean Flagged holding v.
func NewFlagged[T comparable](v T) Flagged[T] {
	return Flagged[T]{v: v}
}

// Set stores v and reports whether the value changed.
func (f *Flagged[T]) Set(v T) bool {
	if f.v == v {
		return false
	}
	f.v = v
	f.dirty = true
	return true
}

// Force stores v and marks the value dirty, even if it did not change.
func (f *Flagged[T]) Force(v T) {
	f.v = v
	f.dirty = true
}

// Value returns the current value, leaving the flag untouched.
func (f *Flagged[T]) Value() T { return f.v }

// Dirty reports whether the value changed since it was last taken.
func (f *Flagged[T]) Dirty() bool { return f.dirty }

// Take returns the current value and whether it was dirty, and clears the flag.
func (f *Flagged[T]) Take() (T, bool) {
	v, dirty := f.v, f.dirty
	f.dirty = false
	return v, dirty
}
