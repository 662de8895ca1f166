// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-lpc/mio/config"
	"github.com/go-lpc/mio/proto"
)

func TestRack(t *testing.T) {
	var (
		s1 = &loopback{reply: runData(func() []byte { return u16s(130) })}
		s2 = &loopback{reply: runData(func() []byte { return u16s(120) })}
	)
	set := config.Settings{
		"a.channels": "1",
		"b.channels": "1",
	}
	rack := NewRack(
		log.New(io.Discard, "mio: ", 0),
		newTestDevice(t, "a", set, s1),
		newTestDevice(t, "b", set, s2),
	)

	if rack.Device("b") == nil || rack.Device("c") != nil {
		t.Fatalf("invalid device lookup")
	}

	err := rack.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("could not collect: %+v", err)
	}

	for _, tc := range []struct {
		name string
		want float64
	}{
		{"a", 3},
		{"b", 7},
	} {
		v, ok := rack.Device(tc.name).Channel(0).PeakAndReset()
		if !ok || v != tc.want {
			t.Fatalf("device %q: invalid peak: got=%v (ok=%v), want=%v", tc.name, v, ok, tc.want)
		}
	}

	s2.close()
	err = rack.CollectAll(context.Background())
	if !errors.Is(err, proto.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if got, want := rack.Alive(), 1; got != want {
		t.Fatalf("invalid number of live devices: got=%d, want=%d", got, want)
	}

	// the lost device is skipped.
	err = rack.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("could not collect: %+v", err)
	}

	stats := rack.Stats()
	if len(stats) != 2 || !stats[0].Alive || stats[1].Alive {
		t.Fatalf("invalid stats: %+v", stats)
	}
	if stats[0].Packets != 3 {
		t.Fatalf("invalid packets count for %q: %d", stats[0].Name, stats[0].Packets)
	}
}

func TestRackRun(t *testing.T) {
	s := &loopback{reply: runData(func() []byte { return u16s(128) })}
	dev := newTestDevice(t, "a", config.Settings{"a.channels": "1"}, s)
	rack := NewRack(log.New(io.Discard, "mio: ", 0), dev)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rack.Run(ctx, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("could not run rack: %+v", err)
	}
	if got := dev.Stats().Packets; got < 2 {
		t.Fatalf("rack should have collected several times: packets=%d", got)
	}

	s.close()
	err = rack.Run(context.Background(), time.Millisecond)
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}

func TestRackRunEmpty(t *testing.T) {
	rack := NewRack(log.New(io.Discard, "mio: ", 0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := rack.Run(ctx, time.Millisecond)
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}
