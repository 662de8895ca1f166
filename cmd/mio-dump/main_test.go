// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/mio/proto"
	"github.com/go-lpc/mio/wire"
)

func TestDump(t *testing.T) {
	corrupted := wire.Encode(proto.CmdAck, []byte{0x04})
	corrupted[len(corrupted)-1]++

	var raw []byte
	for _, p := range [][]byte{
		wire.Encode(proto.CmdAck, []byte{proto.CmdSetPot}),
		{0x01, 0x02},
		wire.Encode(proto.CmdGetRunData, []byte{1, 2, 3, 4}),
		{0xaa, 0x55, 0x00},
		corrupted,
		wire.Encode(0x42, nil),
		wire.Header[:], {proto.CmdAck},
	} {
		raw = append(raw, p...)
	}

	fname := filepath.Join(t.TempDir(), "board.raw")
	err := os.WriteFile(fname, raw, 0644)
	if err != nil {
		t.Fatalf("could not write capture: %+v", err)
	}

	out := new(bytes.Buffer)
	err = process(out, fname, options{verbose: true, runSize: 4})
	if err != nil {
		t.Fatalf("could not dump capture: %+v", err)
	}

	for _, want := range []string{
		"cmd=0x7f len=   1 03\n",
		"cmd=0x02 len=   4 01020304\n",
		"frames:          2\n",
		"checksum errors: 1\n",
		"unknown:         1\n",
		"resyncs:         1\n",
		"timeouts:        1\n",
		"dropped bytes:   6\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}
}

func TestDumpRequests(t *testing.T) {
	var raw []byte
	for _, p := range [][]byte{
		wire.Encode(proto.CmdGetRunData, nil),
		wire.Encode(proto.CmdSetPot, []byte{3, proto.PotGain, 0x01, 0x90}),
		wire.Encode(proto.CmdSetOnOff, []byte{2, 0}),
		wire.Encode(proto.CmdGetRunData, nil),
	} {
		raw = append(raw, p...)
	}

	fname := filepath.Join(t.TempDir(), "requests.raw")
	err := os.WriteFile(fname, raw, 0644)
	if err != nil {
		t.Fatalf("could not write capture: %+v", err)
	}

	out := new(bytes.Buffer)
	err = process(out, fname, options{requests: true})
	if err != nil {
		t.Fatalf("could not dump capture: %+v", err)
	}

	for _, want := range []string{
		"frames:          4\n",
		"  cmd=0x02           2\n",
		"  cmd=0x03           1\n",
		"  cmd=0x04           1\n",
		"checksum errors: 0\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}
}

func TestDumpMissingFile(t *testing.T) {
	err := process(new(bytes.Buffer), filepath.Join(t.TempDir(), "missing.raw"), options{})
	if err == nil {
		t.Fatalf("expected an error")
	}
}
