// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/mio/board"
	"github.com/go-lpc/mio/conddb"
	"github.com/go-lpc/mio/config"
	"github.com/go-lpc/mio/internal/alert"
	"github.com/go-lpc/mio/proto"
	"github.com/go-lpc/mio/transport"
)

// server drives the rack of devices on behalf of the run control.
type server struct {
	msg *log.Logger
	src string // configuration source
	reg *transport.Registry

	names []string
	set   config.Settings

	streams []*transport.Stream
	rack    *board.Rack

	data chan []byte // encoded peaks, one message per collection round
}

func newServer(src string, msg *log.Logger) *server {
	return &server{
		msg:  msg,
		src:  src,
		reg:  transport.NewRegistry(),
		data: make(chan []byte, 64),
	}
}

// configure loads the device list and settings from src.
func (srv *server) configure(ctx context.Context, src string) error {
	var (
		names []string
		set   config.Settings
	)
	switch {
	case src == "":
		return fmt.Errorf("no configuration source")

	case strings.HasPrefix(src, "db:"):
		db, err := conddb.Open(strings.TrimPrefix(src, "db:"))
		if err != nil {
			return fmt.Errorf("could not open conditions db: %w", err)
		}
		defer db.Close()

		names, set, err = db.Load(ctx)
		if err != nil {
			return fmt.Errorf("could not load configuration from db: %w", err)
		}

	default:
		f, err := config.Load(src)
		if err != nil {
			return fmt.Errorf("could not load configuration file: %w", err)
		}
		names = f.DeviceNames()
		set = f.Flatten()
	}

	if len(names) == 0 {
		return fmt.Errorf("no device configured in %q", src)
	}

	srv.src = src
	srv.names = names
	srv.set = set
	return nil
}

// initialize opens the streams of the configured devices and assembles
// the rack.
func (srv *server) initialize(ctx context.Context) (err error) {
	if srv.set == nil {
		return fmt.Errorf("could not initialize: no configuration")
	}
	if err := srv.reset(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = srv.reset()
		}
	}()

	opts, err := srv.sessionOptions()
	if err != nil {
		return err
	}

	devs := make([]*board.Device, 0, len(srv.names))
	for _, name := range srv.names {
		s, err := srv.open(ctx, name)
		if err != nil {
			return fmt.Errorf("could not open device %q: %w", name, err)
		}
		srv.streams = append(srv.streams, s)

		dev, err := board.NewDevice(name, srv.set, s, board.WithLogger(srv.msg), board.WithSession(opts...))
		if err != nil {
			return fmt.Errorf("could not create device %q: %w", name, err)
		}
		srv.msg.Printf("device %q: kind=%v channels=%d addr=%q session=%s",
			name, dev.Kind(), dev.NumChannels(), s.Addr, s.ID,
		)
		devs = append(devs, dev)
	}

	srv.rack = board.NewRack(srv.msg, devs...)
	return nil
}

func (srv *server) sessionOptions() ([]proto.Option, error) {
	step, err := srv.set.Duration("daq.wait-step", 10*time.Millisecond)
	if err != nil {
		return nil, err
	}
	n, err := srv.set.Int("daq.max-waits", 20)
	if err != nil {
		return nil, err
	}
	resp, err := srv.set.Duration("daq.response-timeout", 2*time.Second)
	if err != nil {
		return nil, err
	}
	return []proto.Option{
		proto.WithLogger(srv.msg),
		proto.WithWait(step, n),
		proto.WithResponseTimeout(resp),
	}, nil
}

// open opens the stream of device name, from its "address" (TCP) or
// "serial" (serial line) setting.
func (srv *server) open(ctx context.Context, name string) (*transport.Stream, error) {
	if addr := srv.set.String(name+".address", ""); addr != "" {
		timeout, err := srv.set.Duration("daq.dial-timeout", 5*time.Second)
		if err != nil {
			return nil, err
		}
		return srv.reg.Dial(ctx, addr, timeout)
	}

	if path := srv.set.String(name+".serial", ""); path != "" {
		baud, err := srv.set.Int(name+".serial-baud", 0)
		if err != nil {
			return nil, err
		}
		if baud == 0 {
			baud, err = srv.set.Int("daq.serial-baud", 115200)
			if err != nil {
				return nil, err
			}
		}
		return srv.reg.OpenSerial(path, baud)
	}

	return nil, fmt.Errorf("no address nor serial line configured")
}

// reset closes all the streams and drops the rack.
func (srv *server) reset() error {
	var errs []error
	for _, s := range srv.streams {
		err := s.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("could not close stream %q: %w", s.Addr, err))
		}
	}
	srv.streams = nil
	srv.rack = nil
	return errors.Join(errs...)
}

// loop collects the rack every poll period and publishes the peaks,
// until ctx is done or every device is lost.
func (srv *server) loop(ctx context.Context) error {
	rack := srv.rack
	if rack == nil {
		return fmt.Errorf("devices not initialized")
	}

	period, err := srv.set.Duration("daq.poll-period", 100*time.Millisecond)
	if err != nil {
		return err
	}

	wdog, every, err := srv.watchdog(rack)
	if err != nil {
		return err
	}
	if every > 0 {
		go wdog.Run(ctx, every)
	}

	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		err := srv.collect(ctx, rack)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// collect runs one collection round and queues the peaks for the /peaks
// output. Peaks are dropped when nobody reads them.
func (srv *server) collect(ctx context.Context, rack *board.Rack) error {
	err := rack.CollectAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, proto.ErrClosed):
		if rack.Alive() == 0 {
			return board.ErrNoDevice
		}
	default:
		return fmt.Errorf("could not collect devices: %w", err)
	}

	buf, err := encodePeaks(rack)
	if err != nil {
		return fmt.Errorf("could not encode peaks: %w", err)
	}
	select {
	case srv.data <- buf:
	default:
	}
	return nil
}

func (srv *server) watchdog(rack *board.Rack) (*alert.Watchdog, time.Duration, error) {
	every, err := srv.set.Duration("alert.period", time.Minute)
	if err != nil {
		return nil, 0, err
	}
	var thr alert.Thresholds
	for _, v := range []struct {
		key string
		ptr *uint64
	}{
		{"alert.checksum-errors", &thr.ChecksumErrors},
		{"alert.timeouts", &thr.Timeouts},
		{"alert.resyncs", &thr.Resyncs},
	} {
		n, err := srv.set.Int(v.key, 0)
		if err != nil {
			return nil, 0, err
		}
		if n < 0 {
			return nil, 0, fmt.Errorf("invalid negative threshold %s=%d", v.key, n)
		}
		*v.ptr = uint64(n)
	}
	return alert.New(srv.msg, thr, rack.Stats), every, nil
}

// encodePeaks encodes, for each device, its name, its channel peaks
// (validity flag and value), its map peaks and its snapshot peaks.
// The peak buffers are reset.
func encodePeaks(rack *board.Rack) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)

	devs := rack.Devices()
	enc.WriteU32(uint32(len(devs)))
	for _, dev := range devs {
		enc.WriteStr(dev.Name())

		enc.WriteU32(uint32(dev.NumChannels()))
		for i := 0; i < dev.NumChannels(); i++ {
			v, ok := dev.Channel(i).PeakAndReset()
			enc.WriteBool(ok)
			enc.WriteF64(v)
		}

		cmap := make([]int, dev.MapLen())
		ok := dev.MapPeakAndReset(cmap)
		enc.WriteBool(ok)
		enc.WriteU32(uint32(len(cmap)))
		for _, v := range cmap {
			enc.WriteI64(int64(v))
		}

		snap := make([]int, dev.SnapshotLen())
		rep, ok := dev.SnapshotPeakAndReset(snap)
		enc.WriteBool(ok)
		enc.WriteI64(int64(rep))
		enc.WriteU32(uint32(len(snap)))
		for _, v := range snap {
			enc.WriteI64(int64(v))
		}
	}

	if err := enc.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
