// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mio-daq starts a TDAQ server driving a rack of Multi-IO and
// Control boards.
//
// The first argument is the configuration source: the path to a YAML
// file or "db:<dbname>" for the MySQL conditions database.
// The /peaks output publishes the peak values of every device after each
// collection round.
package main // import "github.com/go-lpc/mio/cmd/mio-daq"

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/mio"
	"github.com/sbinet/pmon"
)

var (
	doMon  = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq = flag.Duration("freq", 1*time.Second, "pmon frequency")
	logDir = flag.String("log-dir", os.TempDir(), "directory for the pmon log file")
)

func main() {
	log.SetPrefix("mio-daq: ")
	log.SetFlags(0)

	cmd := flags.New()

	if v, _ := mio.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	src := ""
	if len(cmd.Args) > 0 {
		src = cmd.Args[0]
	}
	srv := newServer(src, log.New(os.Stdout, "mio-daq: ", 0))

	if *doMon {
		stop, err := monitor(*logDir, *doFreq)
		if err != nil {
			log.Fatalf("could not start pmon: %+v", err)
		}
		defer stop()
	}

	run := tdaq.New(cmd, os.Stdout)
	run.CmdHandle("/config", srv.OnConfig)
	run.CmdHandle("/init", srv.OnInit)
	run.CmdHandle("/reset", srv.OnReset)
	run.CmdHandle("/start", srv.OnStart)
	run.CmdHandle("/stop", srv.OnStop)
	run.CmdHandle("/quit", srv.OnQuit)

	run.OutputHandle("/peaks", srv.peaks)

	run.RunHandle(srv.run)

	err := run.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

// monitor starts monitoring the resource usage of the current process.
func monitor(dir string, freq time.Duration) (func(), error) {
	pid := os.Getpid()
	p, err := pmon.Monitor(pid)
	if err != nil {
		return nil, fmt.Errorf("could not monitor pid=%d: %w", pid, err)
	}
	f, err := os.Create(filepath.Join(dir, "mio-daq-pmon.log"))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop pmon: %+v", err)
		}
		_ = f.Close()
	}, nil
}

func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	src := srv.src
	if len(req.Body) > 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		src = dec.ReadStr()
		if err := dec.Err(); err != nil {
			return fmt.Errorf("could not decode /config request: %w", err)
		}
	}

	err := srv.configure(ctx.Ctx, src)
	if err != nil {
		ctx.Msg.Errorf("could not configure from %q: %+v", src, err)
		return err
	}
	ctx.Msg.Infof("configured %d devices from %q", len(srv.names), src)
	return nil
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.initialize(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not initialize devices: %+v", err)
		return err
	}
	return nil
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return srv.reset()
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.rack == nil {
		return fmt.Errorf("could not start: devices not initialized")
	}
	return nil
}

func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	if srv.rack == nil {
		return nil
	}
	for _, st := range srv.rack.Stats() {
		ctx.Msg.Infof(
			"device %q: alive=%v packets=%d sent=%d checksum-errors=%d timeouts=%d resyncs=%d unknown=%d",
			st.Name, st.Alive, st.Packets, st.Sent, st.ChecksumErrors, st.Timeouts, st.Resyncs, st.Unknown,
		)
	}
	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return srv.reset()
}

func (srv *server) peaks(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

func (srv *server) run(ctx tdaq.Context) error {
	err := srv.loop(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not run acquisition: %+v", err)
		return err
	}
	return nil
}
