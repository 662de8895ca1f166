// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakeboard

import (
	"context"
	"io"
	"log"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/go-lpc/mio/board"
	"github.com/go-lpc/mio/config"
	"github.com/go-lpc/mio/proto"
	"github.com/go-lpc/mio/transport"
)

var quiet = log.New(io.Discard, "", 0)

// pair returns the front end and board ends of an in-memory connection.
func pair(t *testing.T) (*transport.Stream, *transport.Stream) {
	t.Helper()
	a, b := net.Pipe()
	fe := transport.NewStream(a)
	be := transport.NewStream(b)
	t.Cleanup(func() {
		_ = fe.Close()
		_ = be.Close()
	})
	return fe, be
}

func serve(t *testing.T, brd *Board) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- brd.Serve(ctx, time.Millisecond) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("board failed: %+v", err)
		}
	})
}

func eventually(t *testing.T, what string, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestMultiIO(t *testing.T) {
	fe, be := pair(t)

	set := config.Settings{
		"long.channels":        "4",
		"long.clock-positions": "8",
		"long.snapshot-size":   "16",
	}
	dev, err := board.NewDevice("long", set, fe, board.WithLogger(quiet))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}

	rnd := rand.New(rand.NewSource(42))
	brd := New(be, WithLogger(quiet), WithRunData(RandomRunData(rnd, dev.Layout(), 20)))
	serve(t, brd)

	changed, err := dev.UpdateChannelParameter(2, board.Gain, "300", false)
	if err != nil || !changed {
		t.Fatalf("could not update gain: changed=%v err=%v", changed, err)
	}
	_, _ = dev.UpdateChannelParameter(3, board.OnOff, "off", false)

	eventually(t, "run data", func() bool {
		if err := dev.Collect(); err != nil {
			t.Fatalf("could not collect: %+v", err)
		}
		return dev.Stats().Packets >= 5
	})

	for i := 0; i < dev.NumChannels(); i++ {
		v := dev.Channel(i).Peak()
		if v < 0 || v > 20 {
			t.Fatalf("channel %d: invalid peak %v", i, v)
		}
	}
	snap := make([]int, dev.SnapshotLen())
	rep, ok := dev.SnapshotPeakAndReset(snap)
	if !ok {
		t.Fatalf("no snapshot caught")
	}
	max := 0
	for _, v := range snap {
		if v > max {
			max = v
		}
	}
	if rep != max {
		t.Fatalf("invalid snapshot representative: got=%d, want=%d", rep, max)
	}

	eventually(t, "parameters", func() bool {
		return brd.Channel(2).Gain == 300 && brd.Requests(proto.CmdSetOnOff) == 1
	})
	if brd.Channel(3).On {
		t.Fatalf("channel 3 should have been switched off")
	}
	if got := dev.Session().Acked(proto.CmdSetPot); got != 1 {
		t.Fatalf("invalid number of SetPot acks: %d", got)
	}

	st := dev.Stats()
	if st.ChecksumErrors != 0 || st.Resyncs != 0 || st.Unknown != 0 {
		t.Fatalf("unexpected protocol errors: %+v", st)
	}
}

func TestControl(t *testing.T) {
	fe, be := pair(t)

	dev, err := board.NewDevice("ctl", config.Settings{"ctl.kind": "control"}, fe, board.WithLogger(quiet))
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	sess := dev.Session()

	brd := New(be, WithLogger(quiet))
	serve(t, brd)

	var insp []proto.Inspection
	reports := make(chan proto.Inspection, 16)
	sess.OnInspect(func(v proto.Inspection) { reports <- v })

	for _, f := range []func() error{
		func() error { return sess.SetEncodersDeltaTrigger(10) },
		sess.StartInspect,
	} {
		if err := f(); err != nil {
			t.Fatalf("could not send: %+v", err)
		}
	}
	eventually(t, "inspection start", func() bool {
		_, _ = sess.Poll()
		return sess.Acked(proto.CmdStartInspect) == 1
	})

	for _, d := range []int32{4, 4, 4, -20} {
		if err := brd.Move(d, 0, 0x3); err != nil {
			t.Fatalf("could not move encoders: %+v", err)
		}
	}
	eventually(t, "inspection reports", func() bool {
		_, _ = sess.Poll()
		for {
			select {
			case v := <-reports:
				insp = append(insp, v)
			default:
				return len(insp) == 2
			}
		}
	})
	if insp[0].Encoder1 != 12 || insp[0].Count != 1 || insp[0].Inputs != 0x3 {
		t.Fatalf("invalid first report: %+v", insp[0])
	}
	if insp[1].Encoder1 != -8 || insp[1].Count != 2 {
		t.Fatalf("invalid second report: %+v", insp[1])
	}

	eventually(t, "encoder values", func() bool {
		if err := dev.Collect(); err != nil {
			t.Fatalf("could not collect: %+v", err)
		}
		enc, ok := sess.Encoders()
		return ok && enc[0] == -8
	})

	if err := sess.ZeroEncoders(); err != nil {
		t.Fatalf("could not zero encoders: %+v", err)
	}
	eventually(t, "zeroed encoders", func() bool {
		return brd.Encoders() == proto.Encoders{}
	})
}
