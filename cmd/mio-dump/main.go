// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// mio-dump decodes and displays raw captures of a board byte stream.
//
// Usage: mio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> mio-dump -v -run-data-size=12 ./testdata/board.raw
//	cmd=0x02 len=  12 0084007612345678...
//	cmd=0x7f len=   1 03
//	=== ./testdata/board.raw ===
//	frames:          2
//	  cmd=0x02             1
//	  cmd=0x7f             1
//	checksum errors: 0
//	[...]
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/go-lpc/mio/proto"
)

func main() {
	log.SetPrefix("mio-dump: ")
	log.SetFlags(0)

	var (
		verbose = flag.Bool("v", false, "display every decoded frame")
		reqs    = flag.Bool("requests", false, "decode a capture of the front end requests")
		runSize = flag.Int("run-data-size", 0, "payload size of the run data frames")
	)

	flag.Usage = func() {
		fmt.Printf(`mio-dump decodes and displays raw captures of a board byte stream.

Usage: mio-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> mio-dump -v -run-data-size=12 ./testdata/board.raw

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input capture file")
	}

	opts := options{
		verbose:  *verbose,
		requests: *reqs,
		runSize:  *runSize,
	}
	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, opts)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

type options struct {
	verbose  bool
	requests bool // capture of the front end side
	runSize  int
}

// sizes returns the payload size of every decodable command.
func (o options) sizes() map[byte]int {
	if o.requests {
		return map[byte]int{
			proto.CmdGetAllStatus:            0,
			proto.CmdGetRunData:              0,
			proto.CmdSetPot:                  4,
			proto.CmdSetOnOff:                2,
			proto.CmdGetAllEncoderValues:     0,
			proto.CmdGetMonitorPacket:        0,
			proto.CmdStartInspect:            0,
			proto.CmdStopInspect:             0,
			proto.CmdZeroEncoders:            0,
			proto.CmdSetEncodersDeltaTrigger: 2,
		}
	}
	sizes := map[byte]int{
		proto.CmdGetAllStatus:        proto.AllStatusSize,
		proto.CmdGetAllEncoderValues: proto.EncoderValuesSize,
		proto.CmdGetMonitorPacket:    proto.MonitorSize,
		proto.CmdInspect:             proto.InspectSize,
		proto.CmdAck:                 proto.AckSize,
	}
	if o.runSize > 0 {
		sizes[proto.CmdGetRunData] = o.runSize
	}
	return sizes
}

func process(w io.Writer, fname string, opts options) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	raw, err := os.ReadFile(fname)
	if err != nil {
		return fmt.Errorf("could not read %q: %w", fname, err)
	}

	var (
		counts = make(map[byte]int)
		sess   = proto.NewSession(
			&capture{r: bytes.NewReader(raw)},
			proto.WithLogger(log.New(io.Discard, "", 0)),
			proto.WithWait(0, 1),
		)
	)
	for cmd, size := range opts.sizes() {
		cmd := cmd
		sess.Handle(cmd, size, func(p []byte) {
			counts[cmd]++
			if opts.verbose {
				fmt.Fprintf(wbuf, "cmd=0x%02x len=% 4d %x\n", cmd, len(p), p)
			}
		})
	}

	for {
		_, err := sess.Poll()
		if err != nil {
			if errors.Is(err, proto.ErrClosed) && errors.Is(sess.Err(), io.EOF) {
				break
			}
			return fmt.Errorf("could not decode capture: %w", err)
		}
	}

	cmds := make([]int, 0, len(counts))
	for cmd := range counts {
		cmds = append(cmds, int(cmd))
	}
	sort.Ints(cmds)

	st := sess.Stats()
	fmt.Fprintf(wbuf, "=== %s ===\n", fname)
	fmt.Fprintf(wbuf, "frames:          %d\n", st.Packets)
	for _, cmd := range cmds {
		fmt.Fprintf(wbuf, "  cmd=0x%02x  % 10d\n", cmd, counts[byte(cmd)])
	}
	fmt.Fprintf(wbuf, "checksum errors: %d\n", st.ChecksumErrors)
	fmt.Fprintf(wbuf, "unknown:         %d\n", st.Unknown)
	fmt.Fprintf(wbuf, "resyncs:         %d\n", st.Resyncs)
	fmt.Fprintf(wbuf, "timeouts:        %d\n", st.Timeouts)
	fmt.Fprintf(wbuf, "dropped bytes:   %d\n", st.Dropped)

	return nil
}

// capture replays a byte capture as a board stream.
// Writes are discarded and reads fail with io.EOF once the capture is
// exhausted.
type capture struct {
	r *bytes.Reader
}

func (c *capture) Buffered() int { return c.r.Len() }

func (c *capture) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *capture) Write(p []byte) (int, error) { return len(p), nil }

var _ proto.Stream = (*capture)(nil)
