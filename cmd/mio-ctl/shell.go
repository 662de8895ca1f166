// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/mio/proto"
)

// shell executes console commands against one board session.
type shell struct {
	sess    *proto.Session
	out     io.Writer
	timeout time.Duration
}

func newShell(s proto.Stream, out io.Writer, timeout time.Duration) *shell {
	sess := proto.NewSession(s,
		proto.WithLogger(log.New(out, "proto: ", 0)),
		proto.WithResponseTimeout(timeout),
	)
	sess.RegisterStandard()
	sess.OnInspect(func(v proto.Inspection) {
		fmt.Fprintf(out, "inspect: enc1=%d enc2=%d inputs=0x%04x count=%d\n",
			v.Encoder1, v.Encoder2, v.Inputs, v.Count,
		)
	})
	return &shell{sess: sess, out: out, timeout: timeout}
}

type command struct {
	name string
	args string
	help string
	run  func(sh *shell, args []string) error
}

var commands = []command{
	{"status", "", "print the status packet", (*shell).status},
	{"monitor", "", "print the monitor packet", (*shell).monitor},
	{"encoders", "", "print the encoder values", (*shell).encoders},
	{"zero", "", "zero the encoders", (*shell).zero},
	{"delta", "N", "set the encoders delta trigger", (*shell).delta},
	{"inspect", "start|stop", "start or stop the inspection reports", (*shell).inspect},
	{"on", "CH", "switch board channel CH on", (*shell).onoff},
	{"off", "CH", "switch board channel CH off", (*shell).onoff},
	{"gain", "CH VALUE", "set the gain potentiometer of board channel CH", (*shell).pot},
	{"offset", "CH VALUE", "set the offset potentiometer of board channel CH", (*shell).pot},
	{"poll", "", "process the frames received so far", (*shell).poll},
	{"stats", "", "print the protocol counters", (*shell).stats},
	{"help", "", "print this help message", nil},
	{"quit", "", "leave the console", nil},
}

// exec executes one command line and reports whether the console should
// be left.
func (sh *shell) exec(line string) (bool, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}
	name := strings.ToLower(toks[0])
	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		sh.help()
		return false, nil
	}

	for _, cmd := range commands {
		if cmd.name != name || cmd.run == nil {
			continue
		}
		return false, cmd.run(sh, toks)
	}
	return false, fmt.Errorf("unknown command %q", toks[0])
}

func (sh *shell) help() {
	for _, cmd := range commands {
		fmt.Fprintf(sh.out, "  %-20s %s\n", strings.TrimSpace(cmd.name+" "+cmd.args), cmd.help)
	}
}

// request sends a request and processes the incoming frames until the
// response arrived or the timeout expired.
func (sh *shell) request(req func() (bool, error)) error {
	sent, err := req()
	if err != nil {
		return err
	}
	if !sent {
		return fmt.Errorf("a request is still outstanding")
	}
	return sh.wait(func() bool {
		_, pending := sh.sess.Pending()
		return !pending
	})
}

// acked sends a command and waits for its acknowledgment.
func (sh *shell) acked(cmd byte, send func() error) error {
	n := sh.sess.Acked(cmd)
	err := send()
	if err != nil {
		return err
	}
	err = sh.wait(func() bool { return sh.sess.Acked(cmd) > n })
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "ok\n")
	return nil
}

func (sh *shell) wait(done func() bool) error {
	deadline := time.Now().Add(sh.timeout)
	for {
		_, err := sh.sess.Poll()
		if err != nil {
			return err
		}
		if done() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no response after %v", sh.timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func (sh *shell) status(args []string) error {
	err := sh.request(sh.sess.RequestStatus)
	if err != nil {
		return err
	}
	fmt.Fprint(sh.out, hex.Dump(sh.sess.Status()))
	return nil
}

func (sh *shell) monitor(args []string) error {
	err := sh.request(sh.sess.RequestMonitor)
	if err != nil {
		return err
	}
	fmt.Fprint(sh.out, hex.Dump(sh.sess.Monitor()))
	return nil
}

func (sh *shell) encoders(args []string) error {
	err := sh.request(sh.sess.RequestEncoders)
	if err != nil {
		return err
	}
	enc, _ := sh.sess.Encoders()
	for i, v := range enc {
		fmt.Fprintf(sh.out, "encoder[%d] = %d\n", i, v)
	}
	return nil
}

func (sh *shell) zero(args []string) error {
	return sh.acked(proto.CmdZeroEncoders, sh.sess.ZeroEncoders)
}

func (sh *shell) delta(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: delta N")
	}
	v, err := strconv.ParseUint(args[1], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid delta %q: %w", args[1], err)
	}
	return sh.acked(proto.CmdSetEncodersDeltaTrigger, func() error {
		return sh.sess.SetEncodersDeltaTrigger(uint16(v))
	})
}

func (sh *shell) inspect(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: inspect start|stop")
	}
	switch args[1] {
	case "start":
		return sh.acked(proto.CmdStartInspect, sh.sess.StartInspect)
	case "stop":
		return sh.acked(proto.CmdStopInspect, sh.sess.StopInspect)
	default:
		return fmt.Errorf("usage: inspect start|stop")
	}
}

func (sh *shell) onoff(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s CH", args[0])
	}
	ch, err := parseChannel(args[1])
	if err != nil {
		return err
	}
	on := strings.ToLower(args[0]) == "on"
	return sh.acked(proto.CmdSetOnOff, func() error {
		return sh.sess.SetOnOff(ch, on)
	})
}

func (sh *shell) pot(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: %s CH VALUE", args[0])
	}
	ch, err := parseChannel(args[1])
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(args[2], 0, 16)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", args[0], args[2], err)
	}
	pot := uint8(proto.PotGain)
	if strings.ToLower(args[0]) == "offset" {
		pot = proto.PotOffset
	}
	return sh.acked(proto.CmdSetPot, func() error {
		return sh.sess.SetPot(ch, pot, uint16(v))
	})
}

func (sh *shell) poll(args []string) error {
	n, err := sh.sess.Poll()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%d frame(s)\n", n)
	return nil
}

func (sh *shell) stats(args []string) error {
	st := sh.sess.Stats()
	fmt.Fprintf(sh.out, "packets:         %d\n", st.Packets)
	fmt.Fprintf(sh.out, "sent:            %d\n", st.Sent)
	fmt.Fprintf(sh.out, "checksum errors: %d\n", st.ChecksumErrors)
	fmt.Fprintf(sh.out, "timeouts:        %d\n", st.Timeouts)
	fmt.Fprintf(sh.out, "resyncs:         %d\n", st.Resyncs)
	fmt.Fprintf(sh.out, "unknown:         %d\n", st.Unknown)
	fmt.Fprintf(sh.out, "dropped:         %d\n", st.Dropped)
	return nil
}

func parseChannel(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid board channel %q: %w", s, err)
	}
	return uint8(v), nil
}
