// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-lpc/mio/wire"
	"golang.org/x/xerrors"
)

// HandlerFunc processes the validated payload of a frame.
// The payload is only valid for the duration of the call.
type HandlerFunc func(payload []byte)

type handler struct {
	size int
	fn   HandlerFunc
}

// Stats holds the cumulative counters of a session.
type Stats struct {
	Packets        uint64 // frames validated and dispatched
	ChecksumErrors uint64 // frames dropped because of an invalid checksum
	Timeouts       uint64 // frames or responses that did not arrive in time
	Resyncs        uint64 // header mismatches after a partial header
	Unknown        uint64 // valid headers followed by an unregistered command
	Dropped        uint64 // bytes discarded while seeking a header
	Sent           uint64 // frames written
}

type counters struct {
	packets  atomic.Uint64
	checksum atomic.Uint64
	timeouts atomic.Uint64
	resyncs  atomic.Uint64
	unknown  atomic.Uint64
	dropped  atomic.Uint64
	sent     atomic.Uint64
}

// Session drives the protocol over a byte stream.
//
// Poll is meant to be called from a single polling goroutine; Send,
// Request, Stats and the state accessors may be called from any goroutine.
type Session struct {
	s   Stream
	cfg config

	emu sync.Mutex
	err error // sticky stream error

	wmu     sync.Mutex // serializes writes and the outstanding request
	enc     *wire.Encoder
	pending struct {
		active bool
		cmd    byte
		since  time.Time
	}

	rmu      sync.Mutex // serializes the reader state machine
	hpos     int        // number of header bytes matched so far
	handlers map[byte]handler
	one      [1]byte
	buf      []byte

	cnt counters

	board boardState
}

// NewSession creates a session reading from and writing to s.
// No handler is registered: see Handle and RegisterStandard.
func NewSession(s Stream, opts ...Option) *Session {
	sess := &Session{
		s:        s,
		cfg:      newConfig(),
		enc:      wire.NewEncoder(s),
		handlers: make(map[byte]handler),
	}
	for _, opt := range opts {
		opt(&sess.cfg)
	}
	return sess
}

// Handle registers fn as the handler of the frames with command cmd,
// carrying size payload bytes.
func (sess *Session) Handle(cmd byte, size int, fn HandlerFunc) {
	if size < 0 {
		panic(fmt.Errorf("proto: invalid payload size %d for cmd=0x%02x", size, cmd))
	}
	sess.rmu.Lock()
	defer sess.rmu.Unlock()
	sess.handlers[cmd] = handler{size: size, fn: fn}
}

// Stats returns a snapshot of the session counters.
func (sess *Session) Stats() Stats {
	return Stats{
		Packets:        sess.cnt.packets.Load(),
		ChecksumErrors: sess.cnt.checksum.Load(),
		Timeouts:       sess.cnt.timeouts.Load(),
		Resyncs:        sess.cnt.resyncs.Load(),
		Unknown:        sess.cnt.unknown.Load(),
		Dropped:        sess.cnt.dropped.Load(),
		Sent:           sess.cnt.sent.Load(),
	}
}

// Err returns the stream error that closed the session, if any.
func (sess *Session) Err() error {
	sess.emu.Lock()
	defer sess.emu.Unlock()
	return sess.err
}

func (sess *Session) closed() bool { return sess.Err() != nil }

func (sess *Session) fail(err error) error {
	sess.emu.Lock()
	defer sess.emu.Unlock()
	if sess.err == nil {
		sess.err = err
		sess.cfg.msg.Printf("stream closed: %+v", err)
	}
	return fmt.Errorf("%w: %v", ErrClosed, sess.err)
}

// Send writes a frame without waiting for any response.
func (sess *Session) Send(cmd byte, payload ...byte) error {
	sess.wmu.Lock()
	defer sess.wmu.Unlock()
	return sess.send(cmd, payload)
}

func (sess *Session) send(cmd byte, payload []byte) error {
	if sess.closed() {
		return sess.fail(nil)
	}
	err := sess.enc.Encode(cmd, payload)
	if err != nil {
		return sess.fail(err)
	}
	sess.cnt.sent.Add(1)
	return nil
}

// Request writes a frame expecting a response, unless a previous
// request is still outstanding. Request reports whether the frame was sent.
// An outstanding request older than the response timeout is abandoned
// and accounted for as a timeout.
func (sess *Session) Request(cmd byte, payload ...byte) (bool, error) {
	sess.wmu.Lock()
	defer sess.wmu.Unlock()

	sess.expireLocked(time.Now())
	if sess.pending.active {
		if sess.closed() {
			return false, sess.fail(nil)
		}
		return false, nil
	}

	err := sess.send(cmd, payload)
	if err != nil {
		return false, err
	}
	sess.pending.active = true
	sess.pending.cmd = cmd
	sess.pending.since = time.Now()
	return true, nil
}

// Pending returns the command of the outstanding request, if any.
func (sess *Session) Pending() (byte, bool) {
	sess.wmu.Lock()
	defer sess.wmu.Unlock()
	return sess.pending.cmd, sess.pending.active
}

func (sess *Session) expireLocked(now time.Time) {
	if !sess.pending.active || now.Sub(sess.pending.since) < sess.cfg.respTime {
		return
	}
	sess.cnt.timeouts.Add(1)
	sess.cfg.msg.Printf("no response to cmd=0x%02x after %v", sess.pending.cmd, sess.cfg.respTime)
	sess.pending.active = false
}

// settle clears the outstanding request answered by a (cmd, payload) frame.
func (sess *Session) settle(cmd byte, payload []byte) {
	sess.wmu.Lock()
	defer sess.wmu.Unlock()

	if !sess.pending.active {
		return
	}
	switch {
	case cmd == sess.pending.cmd:
		sess.pending.active = false
	case cmd == CmdAck && len(payload) == AckSize && payload[0] == sess.pending.cmd:
		sess.pending.active = false
	}
}

// Poll processes every frame currently available from the stream and
// returns the number of frames dispatched to their handler.
// Poll only fails with ErrClosed, once the stream is gone.
func (sess *Session) Poll() (int, error) {
	sess.rmu.Lock()
	defer sess.rmu.Unlock()

	if sess.closed() {
		return 0, sess.fail(nil)
	}

	sess.wmu.Lock()
	sess.expireLocked(time.Now())
	sess.wmu.Unlock()

	n := 0
	for {
		cmd, ok, err := sess.seek()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}

		done, err := sess.dispatch(cmd)
		switch {
		case err == nil:
			if done {
				n++
			}
		case xerrors.Is(err, ErrTimeout):
			// the missing bytes may still arrive: resume on next poll.
			return n, nil
		default:
			return n, err
		}
	}
}

// seek consumes bytes until a full header and its command byte were read.
// seek reports false when the stream ran out of buffered bytes.
func (sess *Session) seek() (byte, bool, error) {
	for {
		v, ok, err := sess.readByte()
		if err != nil || !ok {
			return 0, false, err
		}

		if sess.hpos == wire.HeaderSize {
			sess.hpos = 0
			return v, true, nil
		}

		if v == wire.Header[sess.hpos] {
			sess.hpos++
			continue
		}

		// the mismatching byte is dropped along with the partial header.
		if sess.hpos > 0 {
			sess.cnt.resyncs.Add(1)
			sess.cnt.dropped.Add(uint64(sess.hpos))
		}
		sess.cnt.dropped.Add(1)
		sess.hpos = 0
	}
}

func (sess *Session) dispatch(cmd byte) (bool, error) {
	h, ok := sess.handlers[cmd]
	if !ok {
		sess.cnt.unknown.Add(1)
		sess.cfg.msg.Printf("unknown command 0x%02x", cmd)
		return false, nil
	}

	n := h.size + 1
	if cap(sess.buf) < n {
		sess.buf = make([]byte, n)
	}
	buf := sess.buf[:n]

	err := sess.read(buf)
	if err != nil {
		if xerrors.Is(err, ErrTimeout) {
			sess.cnt.timeouts.Add(1)
			sess.cfg.msg.Printf("cmd=0x%02x: %v (want=%d bytes)", cmd, err, n)
		}
		return false, err
	}

	payload, err := wire.VerifyAndStrip(buf, n, cmd)
	if err != nil {
		sess.cnt.checksum.Add(1)
		sess.cfg.msg.Printf("%v", err)
		// the board did answer: a corrupted response still ends the request.
		sess.settle(cmd, nil)
		return false, nil
	}

	sess.cnt.packets.Add(1)
	sess.settle(cmd, payload)
	if h.fn != nil {
		h.fn(payload)
	}
	return true, nil
}

func (sess *Session) readByte() (byte, bool, error) {
	n, err := sess.s.Read(sess.one[:])
	if n == 1 {
		return sess.one[0], true, nil
	}
	if err != nil {
		return 0, false, sess.fail(err)
	}
	return 0, false, nil
}

// read fills p once enough bytes are buffered, waiting a bounded number
// of times for them to arrive.
func (sess *Session) read(p []byte) error {
	for i := 0; sess.s.Buffered() < len(p); i++ {
		if i >= sess.cfg.maxWaits {
			return ErrTimeout
		}
		time.Sleep(sess.cfg.waitStep)
	}

	for len(p) > 0 {
		n, err := sess.s.Read(p)
		p = p[n:]
		if err != nil {
			return sess.fail(err)
		}
		if n == 0 {
			return ErrTimeout
		}
	}
	return nil
}
