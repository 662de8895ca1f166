// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport provides the byte streams connecting the acquisition
// front end to the boards: TCP connections and serial lines.
package transport // import "github.com/go-lpc/mio/transport"

import (
	"bytes"
	"io"
	"sync"
)

// Stream buffers the bytes received from an underlying connection so
// that a reader may ask how many bytes are available and never block.
type Stream struct {
	ID   string // unique session identifier
	Addr string // remote address or device path

	rwc io.ReadWriteCloser

	mu  sync.Mutex
	buf bytes.Buffer
	err error // sticky read error

	done    chan struct{}
	once    sync.Once
	release func()
}

// NewStream starts buffering the bytes read from rwc.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	s := &Stream{
		rwc:  rwc,
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Stream) pump() {
	defer close(s.done)

	p := make([]byte, 4096)
	for {
		n, err := s.rwc.Read(p)
		s.mu.Lock()
		if n > 0 {
			s.buf.Write(p[:n])
		}
		if err != nil {
			s.err = err
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Buffered returns the number of bytes that can be read without blocking.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Read reads up to len(p) buffered bytes.
// Read never blocks: it returns 0, nil when no byte is available, and
// the connection error once the buffer is drained and the connection
// failed.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf.Len() == 0 {
		return 0, s.err
	}
	return s.buf.Read(p)
}

// Write writes p to the underlying connection.
func (s *Stream) Write(p []byte) (int, error) {
	return s.rwc.Write(p)
}

// Done is closed once the underlying connection stopped delivering bytes.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Close closes the underlying connection and releases the stream address.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.rwc.Close()
		if s.release != nil {
			s.release()
		}
	})
	return err
}
