// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakeboard simulates the board end of the protocol: it answers
// the requests of the front end with protocol-conformant frames.
package fakeboard // import "github.com/go-lpc/mio/internal/fakeboard"

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/go-lpc/mio/board"
	"github.com/go-lpc/mio/proto"
)

// Channel holds the parameters of a simulated board channel.
type Channel struct {
	On     bool
	Gain   uint16
	Offset uint16
}

// Board is a simulated Multi-IO or Control board.
type Board struct {
	msg  *log.Logger
	sess *proto.Session

	mu       sync.Mutex
	run      func() []byte
	status   []byte
	monitor  []byte
	chans    map[uint8]Channel
	enc      proto.Encoders
	last     [2]int32 // encoders at the last inspection report
	inspect  bool
	delta    uint16
	count    uint16
	requests map[byte]int
}

// Option configures a Board.
type Option func(*Board)

// WithLogger sets the logger of the board.
func WithLogger(msg *log.Logger) Option {
	return func(b *Board) { b.msg = msg }
}

// WithRunData sets the generator of the run data payloads.
func WithRunData(gen func() []byte) Option {
	return func(b *Board) { b.run = gen }
}

// New creates a board talking over s.
func New(s proto.Stream, opts ...Option) *Board {
	b := &Board{
		msg:      log.New(os.Stdout, "fakeboard: ", 0),
		status:   make([]byte, proto.AllStatusSize),
		monitor:  make([]byte, proto.MonitorSize),
		chans:    make(map[uint8]Channel),
		requests: make(map[byte]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sess = proto.NewSession(s, proto.WithLogger(b.msg))

	for _, cmd := range []byte{
		proto.CmdGetAllStatus,
		proto.CmdGetRunData,
		proto.CmdGetAllEncoderValues,
		proto.CmdGetMonitorPacket,
		proto.CmdStartInspect,
		proto.CmdStopInspect,
		proto.CmdZeroEncoders,
	} {
		cmd := cmd
		b.sess.Handle(cmd, 0, func([]byte) { b.handle(cmd, nil) })
	}
	b.sess.Handle(proto.CmdSetOnOff, 2, func(p []byte) { b.handle(proto.CmdSetOnOff, p) })
	b.sess.Handle(proto.CmdSetPot, 4, func(p []byte) { b.handle(proto.CmdSetPot, p) })
	b.sess.Handle(proto.CmdSetEncodersDeltaTrigger, 2, func(p []byte) {
		b.handle(proto.CmdSetEncodersDeltaTrigger, p)
	})
	return b
}

func (b *Board) handle(cmd byte, p []byte) {
	b.mu.Lock()
	b.requests[cmd]++

	var (
		reply []byte
		ack   = true
	)
	switch cmd {
	case proto.CmdGetAllStatus:
		reply, ack = append([]byte(nil), b.status...), false
	case proto.CmdGetMonitorPacket:
		reply, ack = append([]byte(nil), b.monitor...), false
	case proto.CmdGetAllEncoderValues:
		reply, ack = proto.AppendEncoders(nil, b.enc), false
	case proto.CmdGetRunData:
		ack = false
		if b.run != nil {
			reply = b.run()
		}
	case proto.CmdStartInspect:
		b.inspect = true
		b.last = [2]int32{b.enc[0], b.enc[1]}
	case proto.CmdStopInspect:
		b.inspect = false
	case proto.CmdZeroEncoders:
		b.enc = proto.Encoders{}
		b.last = [2]int32{}
	case proto.CmdSetEncodersDeltaTrigger:
		b.delta = binary.BigEndian.Uint16(p)
	case proto.CmdSetOnOff:
		ch := b.chans[p[0]]
		ch.On = p[1] != 0
		b.chans[p[0]] = ch
	case proto.CmdSetPot:
		ch := b.chans[p[0]]
		v := binary.BigEndian.Uint16(p[2:])
		switch p[1] {
		case proto.PotGain:
			ch.Gain = v
		case proto.PotOffset:
			ch.Offset = v
		}
		b.chans[p[0]] = ch
	}
	b.mu.Unlock()

	var err error
	switch {
	case ack:
		err = b.sess.Send(proto.CmdAck, cmd)
	case cmd == proto.CmdGetRunData && reply == nil:
		// no run data generator: the request times out on the front end.
	default:
		err = b.sess.Send(cmd, reply...)
	}
	if err != nil {
		b.msg.Printf("could not reply to cmd=0x%02x: %+v", cmd, err)
	}
}

// Session returns the protocol session of the board.
func (b *Board) Session() *proto.Session { return b.sess }

// Channel returns the parameters of board channel ch.
func (b *Board) Channel(ch uint8) Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chans[ch]
}

// Requests returns the number of frames received for cmd.
func (b *Board) Requests(cmd byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[cmd]
}

// SetStatus sets the payload of the status responses.
func (b *Board) SetStatus(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.status, p)
}

// SetMonitor sets the payload of the monitor responses.
func (b *Board) SetMonitor(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.monitor, p)
}

// Encoders returns the current encoder counts.
func (b *Board) Encoders() proto.Encoders {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enc
}

// Move moves the first two encoders by d1 and d2 counts.
// While inspecting, an inspection report is sent once an encoder moved by
// at least the delta trigger since the previous report.
func (b *Board) Move(d1, d2 int32, inputs uint16) error {
	b.mu.Lock()
	b.enc[0] += d1
	b.enc[1] += d2
	if !b.inspect || (!moved(b.enc[0], b.last[0], b.delta) && !moved(b.enc[1], b.last[1], b.delta)) {
		b.mu.Unlock()
		return nil
	}
	b.last = [2]int32{b.enc[0], b.enc[1]}
	b.count++
	insp := proto.Inspection{
		Encoder1: b.enc[0],
		Encoder2: b.enc[1],
		Inputs:   inputs,
		Count:    b.count,
	}
	b.mu.Unlock()

	return b.sess.Send(proto.CmdInspect, proto.AppendInspection(nil, insp)...)
}

func moved(v, ref int32, delta uint16) bool {
	d := int64(v) - int64(ref)
	if d < 0 {
		d = -d
	}
	return d >= int64(delta)
}

// Serve processes the requests of the front end until ctx is done or the
// stream is closed.
func (b *Board) Serve(ctx context.Context, period time.Duration) error {
	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		_, err := b.sess.Poll()
		if err != nil {
			if errors.Is(err, proto.ErrClosed) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// RandomRunData returns a run data generator for the layout l, with
// samples spread by at most spread counts around the zero code.
func RandomRunData(rnd *rand.Rand, l board.Layout, spread int) func() []byte {
	var mu sync.Mutex
	sample := func() int {
		v := l.Zero + rnd.Intn(2*spread+1) - spread
		if v < 0 {
			v = 0
		}
		return v
	}
	return func() []byte {
		mu.Lock()
		defer mu.Unlock()

		p := make([]byte, l.Size)
		for i := 0; i < l.Channels; i++ {
			binary.BigEndian.PutUint16(p[l.ChannelOffset+2*i:], uint16(sample()))
		}
		for i := l.MapOffset(); i < l.MinSize(); i++ {
			p[i] = byte(sample())
		}
		return p
	}
}
