// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proto implements the request/response protocol spoken by the
// Multi-IO and Control boards over a byte stream.
//
// A Session scans the incoming bytes for the frame header, dispatches
// each frame to the handler registered for its command byte, validates
// the frame checksum and recovers from corrupted or truncated frames by
// resynchronizing on the next header.
// Per-frame failures never surface as errors: they are accounted for in
// cumulative counters (see Stats).
package proto // import "github.com/go-lpc/mio/proto"

import (
	"io"
	"log"
	"os"
	"time"

	"golang.org/x/xerrors"
)

// Command identifiers shared by the boards and the front end.
const (
	CmdGetAllStatus            = 0x01
	CmdGetRunData              = 0x02
	CmdSetPot                  = 0x03
	CmdSetOnOff                = 0x04
	CmdGetAllEncoderValues     = 0x05
	CmdGetMonitorPacket        = 0x06
	CmdStartInspect            = 0x07
	CmdStopInspect             = 0x08
	CmdZeroEncoders            = 0x09
	CmdSetEncodersDeltaTrigger = 0x0a
	CmdInspect                 = 0x0b // unsolicited, sent while inspecting
	CmdAck                     = 0x7f
)

// Response payload sizes, checksum excluded.
const (
	AllStatusSize     = 111
	MonitorSize       = 29
	InspectSize       = 12
	EncoderValuesSize = 32
	AckSize           = 1
)

// Pot selectors of a SetPot request.
const (
	PotGain   = 0
	PotOffset = 1
)

var (
	// ErrClosed is returned once the underlying stream failed.
	ErrClosed = xerrors.New("proto: stream closed")

	// ErrTimeout reports expected response bytes that did not arrive in time.
	ErrTimeout = xerrors.New("proto: timeout waiting for response bytes")
)

// Stream is a byte stream whose reads never block.
type Stream interface {
	io.Writer

	// Buffered returns the number of bytes readable without blocking.
	Buffered() int

	// Read reads up to len(p) buffered bytes. Read returns 0, nil when
	// no byte is available and a non-nil error once the stream is gone.
	Read(p []byte) (int, error)
}

type config struct {
	msg      *log.Logger
	waitStep time.Duration // sleep between two polls for missing bytes
	maxWaits int           // number of polls before a timeout
	respTime time.Duration // time after which an outstanding request is abandoned
}

func newConfig() config {
	return config{
		msg:      log.New(os.Stdout, "proto: ", 0),
		waitStep: 10 * time.Millisecond,
		maxWaits: 20,
		respTime: 2 * time.Second,
	}
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the logger used to report protocol errors.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithWait configures the bounded wait for the bytes of a frame:
// at most n polls, step apart.
func WithWait(step time.Duration, n int) Option {
	return func(cfg *config) {
		cfg.waitStep = step
		cfg.maxWaits = n
	}
}

// WithResponseTimeout configures how long a request may stay outstanding
// before a new request is allowed.
func WithResponseTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.respTime = d
	}
}
