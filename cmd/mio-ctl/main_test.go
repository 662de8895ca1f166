// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/mio/internal/fakeboard"
	"github.com/go-lpc/mio/proto"
	"github.com/go-lpc/mio/transport"
)

func TestShell(t *testing.T) {
	a, b := net.Pipe()
	fe := transport.NewStream(a)
	be := transport.NewStream(b)
	defer fe.Close()
	defer be.Close()

	brd := fakeboard.New(be, fakeboard.WithLogger(log.New(io.Discard, "", 0)))
	status := make([]byte, proto.AllStatusSize)
	copy(status, "MIO-STATUS")
	brd.SetStatus(status)
	if err := brd.Move(42, -3, 0); err != nil {
		t.Fatalf("could not move encoders: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- brd.Serve(ctx, time.Millisecond) }()
	defer func() {
		cancel()
		<-done
	}()

	out := new(bytes.Buffer)
	sh := newShell(fe, out, 2*time.Second)

	for _, tc := range []struct {
		line string
		want string
		err  string
		quit bool
	}{
		{line: "help", want: "inspect start|stop"},
		{line: "status", want: "MIO-STATUS"},
		{line: "encoders", want: "encoder[0] = 42\nencoder[1] = -3\n"},
		{line: "monitor", want: "00000000"},
		{line: "gain 3 400", want: "ok\n"},
		{line: "offset 3 0x10", want: "ok\n"},
		{line: "off 2", want: "ok\n"},
		{line: "delta 5", want: "ok\n"},
		{line: "inspect start", want: "ok\n"},
		{line: "inspect stop", want: "ok\n"},
		{line: "zero", want: "ok\n"},
		{line: "stats", want: "checksum errors: 0\n"},
		{line: "gain 3", err: "usage: gain CH VALUE"},
		{line: "on 256", err: "invalid board channel"},
		{line: "delta -1", err: "invalid delta"},
		{line: "inspect", err: "usage: inspect start|stop"},
		{line: "boom", err: `unknown command "boom"`},
		{line: "quit", quit: true},
	} {
		t.Run(tc.line, func(t *testing.T) {
			out.Reset()
			quit, err := sh.exec(tc.line)
			switch {
			case tc.err != "":
				if err == nil || !strings.Contains(err.Error(), tc.err) {
					t.Fatalf("invalid error: got=%v, want=%q", err, tc.err)
				}
				return
			case err != nil:
				t.Fatalf("could not execute %q: %+v", tc.line, err)
			}
			if quit != tc.quit {
				t.Fatalf("invalid quit: got=%v, want=%v", quit, tc.quit)
			}
			if !strings.Contains(out.String(), tc.want) {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", out.String(), tc.want)
			}
		})
	}

	if got := brd.Channel(3); got.Gain != 400 || got.Offset != 0x10 {
		t.Fatalf("invalid channel 3 parameters: %+v", got)
	}
	if brd.Channel(2).On {
		t.Fatalf("channel 2 should be off")
	}
	if enc := brd.Encoders(); enc != (proto.Encoders{}) {
		t.Fatalf("encoders not zeroed: %v", enc)
	}
}

func TestComplete(t *testing.T) {
	got := complete("in")
	if len(got) != 1 || got[0] != "inspect" {
		t.Fatalf("invalid completion: %q", got)
	}
	if got := complete("o"); len(got) != 3 {
		t.Fatalf("invalid completion: %q", got)
	}
}
