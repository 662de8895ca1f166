// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements the framing of the Multi-IO and Control boards
// request/response protocol.
//
// A frame is laid out as:
//
//	0xAA 0x55 0xBB 0x66 <cmd> <payload...> <checksum>
//
// where the checksum byte is chosen such that cmd+payload+checksum is
// zero, modulo 256.
package wire // import "github.com/go-lpc/mio/wire"

import (
	"fmt"
	"io"

	"golang.org/x/xerrors"
)

// Header is the fixed frame synchronization sequence.
var Header = [HeaderSize]byte{0xaa, 0x55, 0xbb, 0x66}

const (
	HeaderSize = 4 // size of the synchronization header
	Overhead   = HeaderSize + 2
)

// Checksum returns the checksum byte for the given command and payload.
func Checksum(cmd byte, payload []byte) byte {
	sum := cmd
	for _, v := range payload {
		sum += v
	}
	return byte(0x100 - int(sum))
}

// Encode returns the framed byte sequence for cmd and payload.
func Encode(cmd byte, payload []byte) []byte {
	p := make([]byte, 0, Overhead+len(payload))
	p = append(p, Header[:]...)
	p = append(p, cmd)
	p = append(p, payload...)
	p = append(p, Checksum(cmd, payload))
	return p
}

// VerifyAndStrip validates a received frame tail.
// buf holds exactly n bytes: the payload followed by the checksum byte,
// the header and command byte having already been consumed.
// VerifyAndStrip returns the payload (without the checksum byte) or a
// *ChecksumError.
func VerifyAndStrip(buf []byte, n int, cmd byte) ([]byte, error) {
	if len(buf) != n || n < 1 {
		panic(xerrors.Errorf("wire: invalid frame tail length (got=%d, want=%d)", len(buf), n))
	}

	sum := cmd
	for _, v := range buf {
		sum += v
	}
	if sum != 0 {
		return nil, &ChecksumError{Cmd: cmd, Sum: sum}
	}
	return buf[:n-1], nil
}

// ChecksumError describes a frame whose checksum did not validate.
type ChecksumError struct {
	Cmd byte // command identifier of the corrupted frame
	Sum byte // residual sum, zero for a valid frame
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("wire: invalid checksum for cmd=0x%02x (residual=0x%02x)", e.Cmd, e.Sum)
}

// Encoder writes frames to an output stream.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 0, 64),
	}
}

// Encode writes one frame for cmd and payload.
// Once a write failed, Encode keeps returning that error.
func (enc *Encoder) Encode(cmd byte, payload []byte) error {
	if enc.err != nil {
		return enc.err
	}

	enc.reserve(Overhead + len(payload))
	enc.buf = append(enc.buf[:0], Header[:]...)
	enc.buf = append(enc.buf, cmd)
	enc.buf = append(enc.buf, payload...)
	enc.buf = append(enc.buf, Checksum(cmd, payload))

	n, err := enc.w.Write(enc.buf)
	switch {
	case err != nil:
		enc.err = xerrors.Errorf("wire: could not write frame cmd=0x%02x: %w", cmd, err)
	case n != len(enc.buf):
		enc.err = xerrors.Errorf("wire: could not write frame cmd=0x%02x: %w", cmd, io.ErrShortWrite)
	}
	return enc.err
}

// Err returns the first error encountered by the encoder.
func (enc *Encoder) Err() error { return enc.err }

func (enc *Encoder) reserve(n int) {
	if cap(enc.buf) < n {
		enc.buf = make([]byte, 0, n)
	}
}
