// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-lpc/mio/proto"
	"golang.org/x/sync/errgroup"
)

// ErrNoDevice is returned by Rack.Run once every device stream is closed.
var ErrNoDevice = errors.New("mio: no device left to collect")

// Rack is a fixed set of devices collected together.
type Rack struct {
	msg  *log.Logger
	devs []*Device

	mu   sync.Mutex
	dead map[string]error // devices whose stream was closed
}

// NewRack creates a rack from the given devices.
func NewRack(msg *log.Logger, devs ...*Device) *Rack {
	if msg == nil {
		msg = log.New(os.Stdout, "mio: ", 0)
	}
	return &Rack{
		msg:  msg,
		devs: devs,
		dead: make(map[string]error),
	}
}

// Devices returns the devices of the rack.
func (r *Rack) Devices() []*Device { return r.devs }

// Device returns the device named name, or nil.
func (r *Rack) Device(name string) *Device {
	for _, dev := range r.devs {
		if dev.name == name {
			return dev
		}
	}
	return nil
}

// Alive returns the number of devices whose stream is still open.
func (r *Rack) Alive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devs) - len(r.dead)
}

func (r *Rack) isDead(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, dead := r.dead[name]
	return dead
}

// CollectAll collects every live device concurrently.
// A device whose stream is closed is reported once, wrapping
// proto.ErrClosed, and skipped afterwards.
func (r *Rack) CollectAll(ctx context.Context) error {
	var (
		lost []error
		mu   sync.Mutex
	)
	grp, ctx := errgroup.WithContext(ctx)
	for i := range r.devs {
		dev := r.devs[i]
		if r.isDead(dev.name) {
			continue
		}
		grp.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			err := dev.Collect()
			if err == nil {
				return nil
			}
			if !errors.Is(err, proto.ErrClosed) {
				return err
			}
			r.mu.Lock()
			r.dead[dev.name] = err
			r.mu.Unlock()
			r.msg.Printf("device %q lost: %+v", dev.name, err)

			mu.Lock()
			lost = append(lost, err)
			mu.Unlock()
			return nil
		})
	}
	err := grp.Wait()
	if err != nil {
		return err
	}
	return errors.Join(lost...)
}

// Run collects every device each period, until ctx is done or no device
// is left.
func (r *Rack) Run(ctx context.Context, period time.Duration) error {
	if r.Alive() == 0 {
		return ErrNoDevice
	}

	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		err := r.CollectAll(ctx)
		switch {
		case err == nil:
		case errors.Is(err, proto.ErrClosed):
			if r.Alive() == 0 {
				return ErrNoDevice
			}
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("mio: could not collect devices: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// DeviceStats is the snapshot of the protocol counters of a device.
type DeviceStats struct {
	Name  string
	Alive bool
	proto.Stats
}

// Stats returns the protocol counters of every device.
func (r *Rack) Stats() []DeviceStats {
	out := make([]DeviceStats, len(r.devs))
	for i, dev := range r.devs {
		out[i] = DeviceStats{
			Name:  dev.name,
			Alive: !r.isDead(dev.name),
			Stats: dev.Stats(),
		}
	}
	return out
}
