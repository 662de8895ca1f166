// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"

	"github.com/go-lpc/mio/peak"
)

// ClockMap translates the clock positions of a board into the positions
// of the displayed grid. Several clock positions may share a grid position.
type ClockMap struct {
	dst  []int // grid position of each clock position
	grid int   // number of grid positions
}

// IdentityClockMap returns the map sending clock position i to grid position i.
func IdentityClockMap(n int) ClockMap {
	dst := make([]int, n)
	for i := range dst {
		dst[i] = i
	}
	return ClockMap{dst: dst, grid: n}
}

// NewClockMap returns the map sending clock position i to grid position dst[i].
func NewClockMap(dst []int, grid int) (ClockMap, error) {
	for i, v := range dst {
		if v < 0 || v >= grid {
			return ClockMap{}, fmt.Errorf(
				"mio: invalid clock map: position %d sent to %d (grid size=%d)",
				i, v, grid,
			)
		}
	}
	return ClockMap{dst: append([]int(nil), dst...), grid: grid}, nil
}

// Len returns the number of clock positions.
func (cm ClockMap) Len() int { return len(cm.dst) }

// GridLen returns the number of grid positions.
func (cm ClockMap) GridLen() int { return cm.grid }

// Remap stores into dst the samples of src moved to their grid position.
// Grid positions fed by several clock positions keep the best sample
// according to pol; positions fed by none hold the reset value of pol.
func (cm ClockMap) Remap(pol peak.Policy, dst, src []int) {
	if len(src) != len(cm.dst) || len(dst) != cm.grid {
		panic(fmt.Errorf(
			"mio: clock map length mismatch (src=%d, dst=%d, map=%d->%d)",
			len(src), len(dst), len(cm.dst), cm.grid,
		))
	}

	reset := peak.ResetValue[int](pol)
	for i := range dst {
		dst[i] = reset
	}
	for i, v := range src {
		j := cm.dst[i]
		if peak.Wins(pol, v, dst[j]) {
			dst[j] = v
		}
	}
}
