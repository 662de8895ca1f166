// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"encoding/binary"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/mio/config"
	"github.com/go-lpc/mio/peak"
	"github.com/go-lpc/mio/proto"
)

// Kind is the kind of board a device talks to.
type Kind uint8

const (
	Longitudinal Kind = iota
	Transverse
	Wall
	Control
)

func (k Kind) String() string {
	switch k {
	case Longitudinal:
		return "longitudinal"
	case Transverse:
		return "transverse"
	case Wall:
		return "wall"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind converts a board kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "longitudinal", "long":
		return Longitudinal, nil
	case "transverse", "trans":
		return Transverse, nil
	case "wall":
		return Wall, nil
	case "control", "ctl":
		return Control, nil
	}
	return 0, fmt.Errorf("mio: unknown board kind %q", s)
}

// DefaultZero is the ADC code of a null signal.
const DefaultZero = 127

// Layout describes the run data payload of a Multi-IO board.
//
// Channel samples are big-endian uint16 values, 2 bytes per channel.
// The clock position samples (one byte each) follow the channel region,
// then the snapshot samples (one byte each).
type Layout struct {
	ChannelOffset int // byte offset of the channel region
	Channels      int // number of channel samples
	MapCount      int // number of clock position samples
	SnapshotCount int // number of snapshot samples
	Size          int // payload size, checksum excluded
	Zero          int // code of a null signal
}

// MapOffset returns the byte offset of the clock position samples.
func (l Layout) MapOffset() int { return l.ChannelOffset + 2*l.Channels }

// SnapshotOffset returns the byte offset of the snapshot samples.
func (l Layout) SnapshotOffset() int { return l.MapOffset() + l.MapCount }

// MinSize returns the smallest payload holding every region.
func (l Layout) MinSize() int { return l.SnapshotOffset() + l.SnapshotCount }

// Device is an acquisition board with its logical channels and the peak
// buffers fed by its run data.
type Device struct {
	name string
	kind Kind
	msg  *log.Logger
	sess *proto.Session

	layout Layout
	pol    peak.Policy
	chans  []*Channel
	params []*ChannelParams // sorted by board channel

	cmap ClockMap
	mbuf *peak.ArrayBuffer[int]
	sbuf *peak.SnapshotBuffer[int]

	// scratch space of the demultiplexer.
	raw  []int
	grid []int
	snap []int
}

// NewDevice creates the device named name from its settings, talking to
// its board over s.
//
// Settings are read under the "<name>." prefix. Malformed values are
// logged and replaced by their default.
func NewDevice(name string, set config.Settings, s proto.Stream, opts ...Option) (*Device, error) {
	cfg := newOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	dev := &Device{
		name: name,
		msg:  cfg.msg,
	}
	sopts := append([]proto.Option{proto.WithLogger(cfg.msg)}, cfg.sess...)
	dev.sess = proto.NewSession(s, sopts...)
	dev.sess.RegisterStandard()

	st := settings{prefix: name + ".", set: set, msg: cfg.msg}

	kind, err := ParseKind(st.str("kind", Longitudinal.String()))
	if err != nil {
		return nil, fmt.Errorf("mio: could not create device %q: %w", name, err)
	}
	dev.kind = kind
	if kind == Control {
		return dev, nil
	}

	dev.pol = st.policy("peak-type", peak.Highest)

	nchans := st.integer("channels", 0)
	if nchans < 0 {
		return nil, fmt.Errorf("mio: invalid number of channels for device %q: %d", name, nchans)
	}
	dev.layout = Layout{
		ChannelOffset: st.integer("channel-offset", 0),
		Channels:      nchans,
		MapCount:      st.integer("clock-positions", 0),
		SnapshotCount: st.integer("snapshot-size", 0),
		Zero:          st.integer("zero-offset", DefaultZero),
	}
	if dev.layout.ChannelOffset < 0 || dev.layout.MapCount < 0 || dev.layout.SnapshotCount < 0 {
		return nil, fmt.Errorf("mio: invalid run data layout for device %q: %+v", name, dev.layout)
	}

	end, err := dev.setupChannels(st)
	if err != nil {
		return nil, fmt.Errorf("mio: could not setup channels of device %q: %w", name, err)
	}
	if end < dev.layout.MinSize() {
		end = dev.layout.MinSize()
	}
	dev.layout.Size = st.integer("run-data-size", end)
	if dev.layout.Size < end {
		dev.msg.Printf("device %q: run data size %d too small, using %d", name, dev.layout.Size, end)
		dev.layout.Size = end
	}

	dev.setupClockMap(st)
	dev.raw = make([]int, dev.layout.MapCount)
	dev.grid = make([]int, dev.cmap.GridLen())
	dev.snap = make([]int, dev.layout.SnapshotCount)
	dev.mbuf = peak.NewArrayBuffer(dev.pol, dev.cmap.GridLen(), peak.ResetValue[int](dev.pol))
	dev.sbuf = peak.NewSnapshotBuffer(dev.pol, dev.layout.SnapshotCount, peak.ResetValue[int](dev.pol))

	dev.sess.Handle(proto.CmdGetRunData, dev.layout.Size, dev.demux)
	return dev, nil
}

// setupChannels creates the logical channels and returns the end of the
// last channel sample in the run data.
func (dev *Device) setupChannels(st settings) (int, error) {
	var (
		l      = dev.layout
		end    = 0
		shared = make(map[int]*ChannelParams)
	)
	dev.chans = make([]*Channel, l.Channels)
	for i := range dev.chans {
		key := "channel." + strconv.Itoa(i) + "."
		bch := st.integer(key+"board-channel", i)
		if bch < 0 || bch > 0xff {
			return 0, fmt.Errorf("invalid board channel %d for channel %d", bch, i)
		}
		off := st.integer(key+"offset", l.ChannelOffset+2*i)
		if off < 0 {
			return 0, fmt.Errorf("invalid offset %d for channel %d", off, i)
		}
		if off+2 > end {
			end = off + 2
		}

		params, ok := shared[bch]
		if !ok {
			params = NewChannelParams(uint8(bch))
			shared[bch] = params
			dev.params = append(dev.params, params)
		}

		dtype := Integer
		if v, ok := st.set.Get(st.prefix + key + "data-type"); ok {
			dtype, ok = ParseDataType(v, Integer)
			if !ok {
				dev.msg.Printf("device %q: unknown data type %q for channel %d, using %v", dev.name, v, i, dtype)
			}
		}

		dev.chans[i] = newChannel(
			i, off, params,
			st.policyOr(key+"peak-type", dev.pol, peak.Highest),
			dtype, st.real(key+"scale", 1),
		)
	}
	sort.Slice(dev.params, func(i, j int) bool {
		return dev.params[i].ch < dev.params[j].ch
	})
	return end, nil
}

func (dev *Device) setupClockMap(st settings) {
	n := dev.layout.MapCount
	dev.cmap = IdentityClockMap(n)

	dst, err := st.set.Ints(st.prefix + "clock-map")
	if err != nil {
		dev.msg.Printf("device %q: %v, using identity clock map", dev.name, err)
		return
	}
	if dst == nil {
		return
	}
	if len(dst) != n {
		dev.msg.Printf(
			"device %q: clock map has %d entries for %d clock positions, using identity clock map",
			dev.name, len(dst), n,
		)
		return
	}

	cmap, err := NewClockMap(dst, st.integer("grid-positions", n))
	if err != nil {
		dev.msg.Printf("device %q: %v, using identity clock map", dev.name, err)
		return
	}
	dev.cmap = cmap
}

// Name returns the device name.
func (dev *Device) Name() string { return dev.name }

// Kind returns the kind of board of the device.
func (dev *Device) Kind() Kind { return dev.kind }

// Layout returns the run data layout of the device.
func (dev *Device) Layout() Layout { return dev.layout }

// Policy returns the peak policy of the map and snapshot buffers.
func (dev *Device) Policy() peak.Policy { return dev.pol }

// Session returns the protocol session of the device.
func (dev *Device) Session() *proto.Session { return dev.sess }

// Stats returns the protocol counters of the device.
func (dev *Device) Stats() proto.Stats { return dev.sess.Stats() }

// NumChannels returns the number of logical channels.
func (dev *Device) NumChannels() int { return len(dev.chans) }

// Channel returns the i-th logical channel.
func (dev *Device) Channel(i int) *Channel { return dev.chans[i] }

// MapLen returns the number of grid positions of the map buffer.
func (dev *Device) MapLen() int { return dev.cmap.GridLen() }

// SnapshotLen returns the number of snapshot samples.
func (dev *Device) SnapshotLen() int { return dev.layout.SnapshotCount }

// MapPeakAndReset copies the map peaks into dst, resets them and reports
// whether any position was updated. dst must hold MapLen values.
func (dev *Device) MapPeakAndReset(dst []int) bool {
	if dev.mbuf == nil {
		return false
	}
	return dev.mbuf.PeakAndReset(dst)
}

// SnapshotPeakAndReset copies the snapshot into dst, resets it and returns
// its representative peak. dst must hold SnapshotLen values.
func (dev *Device) SnapshotPeakAndReset(dst []int) (int, bool) {
	if dev.sbuf == nil {
		return 0, false
	}
	return dev.sbuf.PeakAndReset(dst)
}

// UpdateChannelParameter sets a parameter of the board channel read by
// logical channel ch. It reports whether the parameter will be pushed
// to the board by the next Collect.
func (dev *Device) UpdateChannelParameter(ch int, kind ParamKind, text string, force bool) (bool, error) {
	if ch < 0 || ch >= len(dev.chans) {
		return false, fmt.Errorf("mio: device %q has no channel %d", dev.name, ch)
	}
	return dev.chans[ch].params.Update(kind, text, force)
}

// PushParams sends the parameters changed since the last push.
func (dev *Device) PushParams() error {
	for _, p := range dev.params {
		err := p.Push(dev.push)
		if err != nil {
			return fmt.Errorf("mio: could not push parameters of device %q: %w", dev.name, err)
		}
	}
	return nil
}

func (dev *Device) push(p Param) error {
	switch p.Kind {
	case OnOff:
		return dev.sess.SetOnOff(p.Channel, p.Value != 0)
	case Gain:
		return dev.sess.SetPot(p.Channel, proto.PotGain, p.Value)
	case Offset:
		return dev.sess.SetPot(p.Channel, proto.PotOffset, p.Value)
	}
	return fmt.Errorf("mio: invalid parameter %v", p.Kind)
}

// Collect pushes the changed parameters, requests fresh data from the board
// and processes the frames received so far.
// Communication errors are accounted for in the session counters: Collect
// only fails once the stream is closed.
func (dev *Device) Collect() error {
	err := dev.PushParams()
	if err != nil {
		return err
	}

	switch dev.kind {
	case Control:
		_, err = dev.sess.RequestEncoders()
	default:
		_, err = dev.sess.RequestRunData()
	}
	if err != nil {
		return fmt.Errorf("mio: could not request data from device %q: %w", dev.name, err)
	}

	_, err = dev.sess.Poll()
	if err != nil {
		return fmt.Errorf("mio: could not poll device %q: %w", dev.name, err)
	}
	return nil
}

// demux feeds a run data payload into the channel, map and snapshot buffers.
func (dev *Device) demux(p []byte) {
	var (
		l    = dev.layout
		zero = l.Zero
	)
	for _, ch := range dev.chans {
		raw := int(binary.BigEndian.Uint16(p[ch.offset:]))
		ch.catch(abs(raw - zero))
	}

	if l.MapCount > 0 {
		src := p[l.MapOffset():][:l.MapCount]
		for i, v := range src {
			dev.raw[i] = abs(int(v) - zero)
		}
		dev.cmap.Remap(dev.pol, dev.grid, dev.raw)
		dev.mbuf.CatchPeak(dev.grid)
	}

	if l.SnapshotCount > 0 {
		src := p[l.SnapshotOffset():][:l.SnapshotCount]
		rep := peak.ResetValue[int](dev.pol)
		for i, v := range src {
			dev.snap[i] = abs(int(v) - zero)
			if peak.Wins(dev.pol, dev.snap[i], rep) {
				rep = dev.snap[i]
			}
		}
		dev.sbuf.CatchPeak(rep, dev.snap)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// settings reads the settings of one device, logging malformed values.
type settings struct {
	prefix string
	set    config.Settings
	msg    *log.Logger
}

func (st settings) str(key, def string) string {
	return st.set.String(st.prefix+key, def)
}

func (st settings) integer(key string, def int) int {
	v, err := st.set.Int(st.prefix+key, def)
	if err != nil {
		st.msg.Printf("%v, using %d", err, def)
	}
	return v
}

func (st settings) real(key string, def float64) float64 {
	v, err := st.set.Float(st.prefix+key, def)
	if err != nil {
		st.msg.Printf("%v, using %g", err, def)
	}
	return v
}

func (st settings) policy(key string, def peak.Policy) peak.Policy {
	return st.policyOr(key, def, def)
}

// policyOr returns the policy stored under key, def when there is none and
// unknown when its name is not recognized.
func (st settings) policyOr(key string, def, unknown peak.Policy) peak.Policy {
	v, err := st.set.Policy(st.prefix+key, def)
	if err != nil {
		st.msg.Printf("%v, using %v", err, unknown)
		return unknown
	}
	return v
}
