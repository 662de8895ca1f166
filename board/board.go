// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board models the Multi-IO and Control boards read by the
// acquisition front end.
//
// A Device maps its logical channels onto the physical channels of a board,
// feeds the samples of each run data frame into peak buffers and pushes
// the channel parameters (on-off, gain, offset) changed since the last
// collection. A Rack collects a fixed set of devices concurrently.
package board // import "github.com/go-lpc/mio/board"
