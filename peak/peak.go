// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package peak provides concurrency-safe buffers that retain the extreme
// values seen since they were last drained.
//
// Three shapes are provided:
//   - Buffer holds a single scalar peak,
//   - ArrayBuffer holds a fixed-length array of independent peaks (a map of
//     clock positions),
//   - SnapshotBuffer holds a scalar representative peak together with the
//     whole data array that was captured along with it.
//
// Every operation on a buffer is atomic with respect to every other
// operation on the same buffer: a producer goroutine may call CatchPeak
// while a consumer goroutine calls PeakAndReset.
package peak // import "github.com/go-lpc/mio/peak"

import (
	"fmt"
	"math"
	"strings"
)

// Number is the set of element types a peak buffer can hold.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Policy selects which of two values is a better peak.
type Policy uint8

const (
	Highest Policy = iota // a strictly greater value wins
	Lowest                // a strictly lower value wins
)

func (p Policy) String() string {
	switch p {
	case Highest:
		return "catch-highest"
	case Lowest:
		return "catch-lowest"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy converts a configuration string to a Policy.
// Unknown strings yield def and ok=false.
func ParsePolicy(s string, def Policy) (pol Policy, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "catch-highest", "catchhighest", "highest", "high", "max":
		return Highest, true
	case "catch-lowest", "catchlowest", "lowest", "low", "min":
		return Lowest, true
	default:
		return def, false
	}
}

// Wins reports whether v is a better peak than cur under policy p.
// Ties never win.
func Wins[T Number](p Policy, v, cur T) bool {
	if p == Lowest {
		return v < cur
	}
	return v > cur
}

// ResetValue returns the value a buffer with policy p is reset to so that
// any real sample wins immediately.
func ResetValue[T Number](p Policy) T {
	if p == Lowest {
		return Ceil[T]()
	}
	return Floor[T]()
}

// Floor returns the lowest value representable by T.
func Floor[T Number]() T {
	var v T
	switch {
	case isFloat[T]():
		inf := math.Inf(-1)
		return T(inf)
	case v-1 > v:
		// unsigned
		return v
	}
	return minSigned[T]()
}

// Ceil returns the highest value representable by T.
func Ceil[T Number]() T {
	var v T
	switch {
	case isFloat[T]():
		inf := math.Inf(+1)
		return T(inf)
	case v-1 > v:
		return v - 1
	}
	return minSigned[T]() - 1
}

func isFloat[T Number]() bool {
	one := T(1)
	return one/2 != 0
}

// minSigned doubles 1 until it wraps around to the most negative value.
func minSigned[T Number]() T {
	v := T(1)
	for v > 0 {
		v *= 2
	}
	return v
}
