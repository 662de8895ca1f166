// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mio holds code for the acquisition front end of the Multi-IO
// and Control boards.
//
// The boards are reached over a byte stream (TCP or serial line) and
// talk a framed protocol: a 4-byte synchronization header, a command
// byte, a fixed-size payload and a checksum byte.
//
// Packages:
//   - wire: frame encoding and checksum validation,
//   - proto: protocol sessions, with header resynchronization,
//   - peak: peak-retaining buffers,
//   - board: devices, channels and racks of devices,
//   - transport: TCP and serial streams,
//   - config and conddb: device settings from YAML files or MySQL.
package mio // import "github.com/go-lpc/mio"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of mio and its checksum, as recorded in the
// build information of the running binary.
// The mio commands are their own main module: a binary built from a
// checkout reports "(devel)".
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/mio"
	if b.Main.Path == root {
		return moduleVersion(&b.Main)
	}
	for _, m := range b.Deps {
		if m.Path == root {
			return moduleVersion(m)
		}
	}
	return "", ""
}

// moduleVersion describes m, following its replacement if any.
// A local replacement without version is flagged with a trailing '*'.
func moduleVersion(m *debug.Module) (version, sum string) {
	r := m.Replace
	switch {
	case r == nil:
		return m.Version, m.Sum
	case r.Path != "" && r.Version != "":
		return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
	case r.Version != "":
		return r.Version, r.Sum
	case r.Path != "":
		return r.Path, r.Sum
	}
	return m.Version + "*", ""
}
