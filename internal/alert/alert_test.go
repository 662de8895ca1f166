// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alert

import (
	"io"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/go-lpc/mio/board"
	"github.com/go-lpc/mio/proto"
)

func TestWatchdog(t *testing.T) {
	var (
		snaps [][]board.DeviceStats
		i     int
		mails []string
	)
	src := func() []board.DeviceStats {
		v := snaps[i]
		i++
		return v
	}
	dev := func(name string, alive bool, st proto.Stats) board.DeviceStats {
		return board.DeviceStats{Name: name, Alive: alive, Stats: st}
	}

	w := New(log.New(io.Discard, "", 0), Thresholds{ChecksumErrors: 10, Timeouts: 5}, src)
	w.send = func(subject, body string) error {
		mails = append(mails, subject)
		return nil
	}

	snaps = [][]board.DeviceStats{
		{
			dev("a", true, proto.Stats{Packets: 10, Sent: 10}),
			dev("b", true, proto.Stats{Packets: 10, Sent: 10}),
			dev("c", false, proto.Stats{}),
		},
		{
			dev("a", true, proto.Stats{Packets: 20, Sent: 20, ChecksumErrors: 9, Resyncs: 1000}),
			dev("b", true, proto.Stats{Packets: 10, Sent: 20, Timeouts: 5}),
			dev("c", false, proto.Stats{}),
		},
		{
			dev("a", false, proto.Stats{Packets: 30, Sent: 30, ChecksumErrors: 19}),
			dev("b", true, proto.Stats{Packets: 20, Sent: 30, Timeouts: 5}),
			dev("c", false, proto.Stats{}),
		},
	}

	for _, want := range [][]string{
		{"c: stream closed"},
		{"b: 5 new timeouts (threshold=5)", "b: no frame received"},
		{"a: stream closed"},
	} {
		var got []string
		for _, a := range w.Check() {
			got = append(got, a.String())
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid alerts:\ngot= %q\nwant=%q", got, want)
		}
	}

	for k := 0; k < 2*maxAlerts; k++ {
		w.Notify([]Alert{{"a", "test"}})
	}
	if got, want := len(mails), maxAlerts; got != want {
		t.Fatalf("invalid number of mails: got=%d, want=%d", got, want)
	}
	if !strings.Contains(mails[0], `"a"`) {
		t.Fatalf("invalid mail subject: %q", mails[0])
	}
}

func TestMailerCredentials(t *testing.T) {
	t.Setenv("MAIL_USERNAME", "")
	m := newMailer(log.New(io.Discard, "", 0))
	if err := m.send("subject", "body"); err == nil {
		t.Fatalf("expected an error for missing credentials")
	}
}
