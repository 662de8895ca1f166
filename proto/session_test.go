// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"bytes"
	"io"
	"log"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-lpc/mio/wire"
	"golang.org/x/xerrors"
)

// memStream is an in-memory Stream delivering at most chunk bytes per read.
type memStream struct {
	mu    sync.Mutex
	in    bytes.Buffer
	out   bytes.Buffer
	chunk int
	rerr  error
	werr  error
}

func (s *memStream) feed(p ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in.Write(p)
}

func (s *memStream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Len()
}

func (s *memStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.in.Len() == 0 {
		return 0, s.rerr
	}
	if s.chunk > 0 && len(p) > s.chunk {
		p = p[:s.chunk]
	}
	return s.in.Read(p)
}

func (s *memStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.werr != nil {
		return 0, s.werr
	}
	return s.out.Write(p)
}

func (s *memStream) written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.out.Bytes()...)
}

func newTestSession(s Stream, opts ...Option) *Session {
	opts = append([]Option{
		WithLogger(log.New(io.Discard, "proto: ", 0)),
		WithWait(time.Millisecond, 3),
	}, opts...)
	return NewSession(s, opts...)
}

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (rec *recorder) handler(p []byte) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.frames = append(rec.frames, append([]byte(nil), p...))
}

func TestPollFrames(t *testing.T) {
	s := new(memStream)
	sess := newTestSession(s)

	var rec recorder
	sess.Handle(0x42, 3, rec.handler)

	s.feed(wire.Encode(0x42, []byte{1, 2, 3})...)
	s.feed(wire.Encode(0x42, []byte{4, 5, 6})...)

	n, err := sess.Poll()
	if err != nil {
		t.Fatalf("could not poll: %+v", err)
	}
	if n != 2 {
		t.Fatalf("invalid number of frames: got=%d, want=2", n)
	}

	want := [][]byte{{1, 2, 3}, {4, 5, 6}}
	if !reflect.DeepEqual(rec.frames, want) {
		t.Fatalf("invalid payloads:\ngot= %v\nwant=%v", rec.frames, want)
	}

	n, err = sess.Poll()
	if err != nil || n != 0 {
		t.Fatalf("empty poll: n=%d err=%v", n, err)
	}

	if got, want := sess.Stats(), (Stats{Packets: 2}); got != want {
		t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, want)
	}
}

func garbage(rnd *rand.Rand, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		v := byte(rnd.Intn(256))
		// a spurious header byte right before a frame may cost that frame.
		if v == wire.Header[0] {
			v = 0
		}
		p[i] = v
	}
	return p
}

func TestResync(t *testing.T) {
	rnd := rand.New(rand.NewSource(1234))

	for i := 0; i < 200; i++ {
		var (
			p1  = []byte{0x10, 0x20, 0x30, 0x40}
			p2  = []byte{0xaa, 0x55, 0xbb, 0x66}
			raw []byte
		)
		raw = append(raw, garbage(rnd, rnd.Intn(16))...)
		raw = append(raw, wire.Encode(0x05, p1)...)
		raw = append(raw, garbage(rnd, rnd.Intn(16))...)
		raw = append(raw, wire.Encode(0x05, p2)...)
		raw = append(raw, garbage(rnd, rnd.Intn(4))...)

		s := &memStream{chunk: 1 + rnd.Intn(7)}
		sess := newTestSession(s)
		var rec recorder
		sess.Handle(0x05, len(p1), rec.handler)

		s.feed(raw...)
		n, err := sess.Poll()
		if err != nil {
			t.Fatalf("iter=%d: could not poll: %+v", i, err)
		}
		if n != 2 {
			t.Fatalf("iter=%d: invalid number of frames: got=%d, want=2 (raw=% x)", i, n, raw)
		}
		if want := [][]byte{p1, p2}; !reflect.DeepEqual(rec.frames, want) {
			t.Fatalf("iter=%d: invalid payloads:\ngot= %v\nwant=%v", i, rec.frames, want)
		}
		if st := sess.Stats(); st.ChecksumErrors != 0 {
			t.Fatalf("iter=%d: unexpected checksum errors: %+v", i, st)
		}
	}
}

func TestHeaderAcrossPolls(t *testing.T) {
	s := new(memStream)
	sess := newTestSession(s)
	var rec recorder
	sess.Handle(0x01, 2, rec.handler)

	frame := wire.Encode(0x01, []byte{7, 8})
	s.feed(0x00, 0x13)
	for _, v := range frame[:wire.HeaderSize] {
		s.feed(v)
		n, err := sess.Poll()
		if err != nil || n != 0 {
			t.Fatalf("partial header: n=%d err=%v", n, err)
		}
	}
	s.feed(frame[wire.HeaderSize:]...)
	n, err := sess.Poll()
	if err != nil {
		t.Fatalf("could not poll: %+v", err)
	}
	if n != 1 || !bytes.Equal(rec.frames[0], []byte{7, 8}) {
		t.Fatalf("invalid frames: n=%d frames=%v", n, rec.frames)
	}
	if got, want := sess.Stats().Dropped, uint64(2); got != want {
		t.Fatalf("invalid dropped count: got=%d, want=%d", got, want)
	}
}

func TestErrorCounters(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
		n    int
		want Stats
	}{
		{
			name: "resync",
			raw:  append([]byte{0xaa, 0x55, 0x00}, wire.Encode(0x01, []byte{1})...),
			n:    1,
			want: Stats{Packets: 1, Resyncs: 1, Dropped: 3},
		},
		{
			name: "checksum",
			raw: func() []byte {
				bad := wire.Encode(0x01, []byte{1})
				bad[len(bad)-1]++
				return append(bad, wire.Encode(0x01, []byte{2})...)
			}(),
			n:    1,
			want: Stats{Packets: 1, ChecksumErrors: 1},
		},
		{
			name: "unknown",
			raw:  append(wire.Encode(0x33, nil), wire.Encode(0x01, []byte{2})...),
			n:    1,
			// the checksum byte of the unknown frame is dropped while seeking.
			want: Stats{Packets: 1, Unknown: 1, Dropped: 1},
		},
		{
			name: "timeout",
			raw:  wire.Encode(0x01, []byte{3})[:wire.HeaderSize+2],
			n:    0,
			want: Stats{Timeouts: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := new(memStream)
			sess := newTestSession(s)
			sess.Handle(0x01, 1, nil)
			s.feed(tc.raw...)

			n, err := sess.Poll()
			if err != nil {
				t.Fatalf("could not poll: %+v", err)
			}
			if n != tc.n {
				t.Fatalf("invalid number of frames: got=%d, want=%d", n, tc.n)
			}
			if got := sess.Stats(); got != tc.want {
				t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, tc.want)
			}
		})
	}
}

func TestTimeoutRecovers(t *testing.T) {
	s := new(memStream)
	sess := newTestSession(s)
	var rec recorder
	sess.Handle(0x01, 4, rec.handler)

	frame := wire.Encode(0x01, []byte{1, 2, 3, 4})
	s.feed(frame[:wire.HeaderSize+1]...)
	n, err := sess.Poll()
	if err != nil || n != 0 {
		t.Fatalf("truncated frame: n=%d err=%v", n, err)
	}

	s.feed(wire.Encode(0x01, []byte{5, 6, 7, 8})...)
	n, err = sess.Poll()
	if err != nil {
		t.Fatalf("could not poll: %+v", err)
	}
	if n != 1 || !bytes.Equal(rec.frames[0], []byte{5, 6, 7, 8}) {
		t.Fatalf("invalid frames after timeout: n=%d frames=%v", n, rec.frames)
	}
	if got, want := sess.Stats().Timeouts, uint64(1); got != want {
		t.Fatalf("invalid timeouts: got=%d, want=%d", got, want)
	}
}

func TestRequest(t *testing.T) {
	s := new(memStream)
	sess := newTestSession(s, WithResponseTimeout(time.Hour))
	sess.Handle(CmdGetRunData, 2, nil)
	sess.Handle(CmdAck, AckSize, nil)

	sent, err := sess.Request(CmdGetRunData)
	if err != nil || !sent {
		t.Fatalf("first request: sent=%v err=%v", sent, err)
	}
	sent, err = sess.Request(CmdGetAllStatus)
	if err != nil || sent {
		t.Fatalf("request while outstanding: sent=%v err=%v", sent, err)
	}
	if cmd, ok := sess.Pending(); !ok || cmd != CmdGetRunData {
		t.Fatalf("invalid pending request: cmd=0x%02x ok=%v", cmd, ok)
	}

	// fire-and-forget frames ignore the outstanding request.
	err = sess.Send(CmdSetOnOff, 1, 1)
	if err != nil {
		t.Fatalf("could not send: %+v", err)
	}

	s.feed(wire.Encode(CmdGetRunData, []byte{1, 2})...)
	if _, err := sess.Poll(); err != nil {
		t.Fatalf("could not poll: %+v", err)
	}
	if _, ok := sess.Pending(); ok {
		t.Fatalf("response should settle the request")
	}

	sent, err = sess.Request(CmdZeroEncoders)
	if err != nil || !sent {
		t.Fatalf("second request: sent=%v err=%v", sent, err)
	}
	s.feed(wire.Encode(CmdAck, []byte{CmdZeroEncoders})...)
	if _, err := sess.Poll(); err != nil {
		t.Fatalf("could not poll: %+v", err)
	}
	if _, ok := sess.Pending(); ok {
		t.Fatalf("ack should settle the request")
	}

	var want []byte
	want = append(want, wire.Encode(CmdGetRunData, nil)...)
	want = append(want, wire.Encode(CmdSetOnOff, []byte{1, 1})...)
	want = append(want, wire.Encode(CmdZeroEncoders, nil)...)
	if got := s.written(); !bytes.Equal(got, want) {
		t.Fatalf("invalid written bytes:\ngot= % x\nwant=% x", got, want)
	}
	if got, want := sess.Stats().Sent, uint64(3); got != want {
		t.Fatalf("invalid sent count: got=%d, want=%d", got, want)
	}
}

func TestRequestExpires(t *testing.T) {
	s := new(memStream)
	sess := newTestSession(s, WithResponseTimeout(5*time.Millisecond))

	sent, err := sess.Request(CmdGetAllStatus)
	if err != nil || !sent {
		t.Fatalf("first request: sent=%v err=%v", sent, err)
	}
	time.Sleep(20 * time.Millisecond)

	sent, err = sess.Request(CmdGetAllStatus)
	if err != nil || !sent {
		t.Fatalf("request after expiry: sent=%v err=%v", sent, err)
	}
	if got, want := sess.Stats().Timeouts, uint64(1); got != want {
		t.Fatalf("invalid timeouts: got=%d, want=%d", got, want)
	}
}

func TestRequestCorruptedResponse(t *testing.T) {
	s := new(memStream)
	sess := newTestSession(s, WithResponseTimeout(time.Hour))
	sess.Handle(CmdGetRunData, 2, nil)

	sent, err := sess.Request(CmdGetRunData)
	if err != nil || !sent {
		t.Fatalf("first request: sent=%v err=%v", sent, err)
	}

	bad := wire.Encode(CmdGetRunData, []byte{1, 2})
	bad[len(bad)-1]++
	s.feed(bad...)
	if _, err := sess.Poll(); err != nil {
		t.Fatalf("could not poll: %+v", err)
	}
	if _, ok := sess.Pending(); ok {
		t.Fatalf("corrupted response should settle the request")
	}

	sent, err = sess.Request(CmdGetRunData)
	if err != nil || !sent {
		t.Fatalf("request after corrupted response: sent=%v err=%v", sent, err)
	}
	st := sess.Stats()
	if st.ChecksumErrors != 1 || st.Timeouts != 0 {
		t.Fatalf("invalid stats: %+v", st)
	}
}

func TestClosed(t *testing.T) {
	s := &memStream{rerr: io.EOF}
	sess := newTestSession(s)
	sess.Handle(0x01, 1, nil)

	// buffered bytes are processed before the stream error shows up.
	s.feed(wire.Encode(0x01, []byte{1})...)
	n, err := sess.Poll()
	if !xerrors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if n != 1 {
		t.Fatalf("invalid number of frames: got=%d, want=1", n)
	}

	for i := 0; i < 2; i++ {
		if _, err := sess.Poll(); !xerrors.Is(err, ErrClosed) {
			t.Fatalf("poll: expected ErrClosed, got %v", err)
		}
		if err := sess.Send(CmdStartInspect); !xerrors.Is(err, ErrClosed) {
			t.Fatalf("send: expected ErrClosed, got %v", err)
		}
		if _, err := sess.Request(CmdGetAllStatus); !xerrors.Is(err, ErrClosed) {
			t.Fatalf("request: expected ErrClosed, got %v", err)
		}
	}
	if !xerrors.Is(sess.Err(), io.EOF) {
		t.Fatalf("invalid stream error: %v", sess.Err())
	}
}

func TestWriteFailure(t *testing.T) {
	s := &memStream{werr: io.ErrClosedPipe}
	sess := newTestSession(s)

	err := sess.Send(CmdStopInspect)
	if !xerrors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := sess.Poll(); !xerrors.Is(err, ErrClosed) {
		t.Fatalf("poll: expected ErrClosed, got %v", err)
	}
}

func TestConcurrentSendPoll(t *testing.T) {
	s := new(memStream)
	sess := newTestSession(s)
	var rec recorder
	sess.Handle(0x01, 1, rec.handler)

	const N = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < N; i++ {
			_ = sess.Send(CmdSetOnOff, byte(i), 1)
			_ = sess.Stats()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < N; i++ {
			s.feed(wire.Encode(0x01, []byte{byte(i)})...)
			if _, err := sess.Poll(); err != nil {
				t.Errorf("could not poll: %+v", err)
				return
			}
		}
	}()
	wg.Wait()

	if got, want := len(rec.frames), N; got != want {
		t.Fatalf("invalid number of frames: got=%d, want=%d", got, want)
	}
	if got, want := sess.Stats().Sent, uint64(N); got != want {
		t.Fatalf("invalid sent count: got=%d, want=%d", got, want)
	}
}
