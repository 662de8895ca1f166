// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"
)

var (
	tcpDial    = tcpDialImpl
	serialOpen = serialOpenImpl
)

func tcpDialImpl(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func serialOpenImpl(path string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Registry keeps track of the open streams, so that two sessions never
// talk to the same board.
type Registry struct {
	mu   sync.Mutex
	open map[string]string // addr -> session ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[string]string)}
}

// Dial connects to the board listening on the TCP address addr.
func (reg *Registry) Dial(ctx context.Context, addr string, timeout time.Duration) (*Stream, error) {
	id, err := reg.acquire(addr)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := tcpDial(ctx, addr)
	if err != nil {
		reg.release(addr)
		return nil, fmt.Errorf("transport: could not dial %q: %w", addr, err)
	}
	return reg.wrap(conn, addr, id), nil
}

// OpenSerial opens the serial line at path with the given baud rate,
// 8 data bits, no parity and one stop bit.
func (reg *Registry) OpenSerial(path string, baud int) (*Stream, error) {
	id, err := reg.acquire(path)
	if err != nil {
		return nil, err
	}

	port, err := serialOpen(path, baud)
	if err != nil {
		reg.release(path)
		return nil, fmt.Errorf("transport: could not open serial port %q (baud=%d): %w", path, baud, err)
	}
	return reg.wrap(port, path, id), nil
}

// Attach registers an already opened connection under addr.
func (reg *Registry) Attach(rwc io.ReadWriteCloser, addr string) (*Stream, error) {
	id, err := reg.acquire(addr)
	if err != nil {
		return nil, err
	}
	return reg.wrap(rwc, addr, id), nil
}

// Sessions returns the sorted list of addresses currently open.
func (reg *Registry) Sessions() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	addrs := make([]string, 0, len(reg.open))
	for addr := range reg.open {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

func (reg *Registry) wrap(rwc io.ReadWriteCloser, addr, id string) *Stream {
	s := NewStream(rwc)
	s.ID = id
	s.Addr = addr
	s.release = func() { reg.release(addr) }
	return s
}

func (reg *Registry) acquire(addr string) (string, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if id, dup := reg.open[addr]; dup {
		return "", fmt.Errorf("transport: address %q already in use (session=%s)", addr, id)
	}
	id := uuid.New().String()
	reg.open[addr] = id
	return id, nil
}

func (reg *Registry) release(addr string) {
	reg.mu.Lock()
	delete(reg.open, addr)
	reg.mu.Unlock()
}
