// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ParamKind identifies a board channel parameter.
type ParamKind uint8

const (
	OnOff ParamKind = iota
	Gain
	Offset
)

func (k ParamKind) String() string {
	switch k {
	case OnOff:
		return "on-off"
	case Gain:
		return "gain"
	case Offset:
		return "offset"
	default:
		return fmt.Sprintf("ParamKind(%d)", uint8(k))
	}
}

// ParseParamKind converts a parameter name to a ParamKind.
func ParseParamKind(s string) (ParamKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on-off", "onoff":
		return OnOff, nil
	case "gain":
		return Gain, nil
	case "offset":
		return Offset, nil
	}
	return 0, fmt.Errorf("mio: unknown channel parameter %q", s)
}

// Param is a parameter value to be pushed to a board channel.
// On-off values are 0 (off) or 1 (on).
type Param struct {
	Channel uint8
	Kind    ParamKind
	Value   uint16
}

// ChannelParams holds the parameters of one physical board channel.
// Logical channels aliasing the same board channel share one ChannelParams.
type ChannelParams struct {
	mu     sync.Mutex
	ch     uint8
	on     Flagged[bool]
	gain   Flagged[uint16]
	offset Flagged[uint16]
}

// NewChannelParams returns clean parameters for board channel ch,
// switched on with zero gain and offset.
func NewChannelParams(ch uint8) *ChannelParams {
	return &ChannelParams{
		ch: ch,
		on: NewFlagged(true),
	}
}

// BoardChannel returns the board channel index.
func (p *ChannelParams) BoardChannel() uint8 { return p.ch }

// Dirty reports whether any parameter still has to be pushed.
func (p *ChannelParams) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on.Dirty() || p.gain.Dirty() || p.offset.Dirty()
}

// Values returns the current parameter values.
func (p *ChannelParams) Values() (on bool, gain, offset uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on.Value(), p.gain.Value(), p.offset.Value()
}

// Update parses text as the new value of the kind parameter and reports
// whether the parameter is now dirty because of this call.
// With force, the parameter is marked dirty even if unchanged.
func (p *ChannelParams) Update(kind ParamKind, text string, force bool) (bool, error) {
	text = strings.TrimSpace(text)
	switch kind {
	case OnOff:
		v, err := parseOnOff(text)
		if err != nil {
			return false, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		return set(&p.on, v, force), nil

	case Gain, Offset:
		v, err := strconv.ParseUint(text, 0, 16)
		if err != nil {
			return false, fmt.Errorf("mio: could not parse %v value %q: %w", kind, text, err)
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if kind == Gain {
			return set(&p.gain, uint16(v), force), nil
		}
		return set(&p.offset, uint16(v), force), nil
	}
	return false, fmt.Errorf("mio: invalid channel parameter %v", kind)
}

func set[T comparable](f *Flagged[T], v T, force bool) bool {
	if force {
		f.Force(v)
		return true
	}
	return f.Set(v)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("mio: could not parse on-off value %q: %w", s, err)
	}
	return v, nil
}

// Push calls fn with every dirty parameter, in on-off, gain, offset order.
// The lock is held during the whole sweep and a flag is only cleared once
// fn succeeded for it: a failed push leaves it and the following ones dirty.
func (p *ChannelParams) Push(fn func(Param) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.on.Dirty() {
		v := uint16(0)
		if p.on.Value() {
			v = 1
		}
		err := fn(Param{Channel: p.ch, Kind: OnOff, Value: v})
		if err != nil {
			return err
		}
		p.on.Take()
	}

	for _, f := range []struct {
		kind ParamKind
		v    *Flagged[uint16]
	}{
		{Gain, &p.gain},
		{Offset, &p.offset},
	} {
		if !f.v.Dirty() {
			continue
		}
		err := fn(Param{Channel: p.ch, Kind: f.kind, Value: f.v.Value()})
		if err != nil {
			return err
		}
		f.v.Take()
	}
	return nil
}
