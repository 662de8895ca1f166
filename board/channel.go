// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
	"strings"

	"github.com/go-lpc/mio/peak"
)

// DataType describes how the raw samples of a channel are presented.
type DataType uint8

const (
	Integer DataType = iota // raw deviation from the zero code
	Double                  // deviation scaled by a calibration factor
)

func (dt DataType) String() string {
	switch dt {
	case Integer:
		return "integer"
	case Double:
		return "double"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(dt))
	}
}

// ParseDataType converts a configuration string to a DataType.
// Unknown strings yield def and ok=false.
func ParseDataType(s string, def DataType) (DataType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int":
		return Integer, true
	case "double", "float", "real":
		return Double, true
	}
	return def, false
}

// Channel is a logical channel of a device, reading one board channel.
type Channel struct {
	id     int // logical channel index
	offset int // byte offset of the sample in the run data
	params *ChannelParams
	dtype  DataType
	scale  float64
	buf    *peak.Buffer[int]
}

func newChannel(id, offset int, params *ChannelParams, pol peak.Policy, dtype DataType, scale float64) *Channel {
	return &Channel{
		id:     id,
		offset: offset,
		params: params,
		dtype:  dtype,
		scale:  scale,
		buf:    peak.NewBuffer(pol, peak.ResetValue[int](pol)),
	}
}

// ID returns the logical channel index.
func (ch *Channel) ID() int { return ch.id }

// BoardChannel returns the index of the board channel read by ch.
func (ch *Channel) BoardChannel() int { return int(ch.params.ch) }

// Params returns the board channel parameters shared by the aliases of ch.
func (ch *Channel) Params() *ChannelParams { return ch.params }

// Policy returns the peak policy of the channel.
func (ch *Channel) Policy() peak.Policy { return ch.buf.Policy() }

// DataType returns the presentation of the channel values.
func (ch *Channel) DataType() DataType { return ch.dtype }

func (ch *Channel) catch(v int) bool {
	return ch.buf.CatchPeak(v)
}

func (ch *Channel) value(v int) float64 {
	if ch.dtype == Double {
		return float64(v) * ch.scale
	}
	return float64(v)
}

// PeakAndReset returns the peak caught since the last call and whether
// any sample was caught, then resets the channel peak.
func (ch *Channel) PeakAndReset() (float64, bool) {
	v, ok := ch.buf.PeakAndReset()
	return ch.value(v), ok
}

// Peak returns the current peak, without resetting it.
func (ch *Channel) Peak() float64 {
	return ch.value(ch.buf.Peak())
}

// RawPeakAndReset is like PeakAndReset but returns the unscaled deviation.
func (ch *Channel) RawPeakAndReset() (int, bool) {
	return ch.buf.PeakAndReset()
}
