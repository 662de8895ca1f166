// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mio-sim simulates a Multi-IO or Control board over TCP.
//
// Each accepted connection is served by its own simulated board.
// A Multi-IO board answers run data requests with random samples around
// the zero code, a Control board moves its encoders every period.
package main // import "github.com/go-lpc/mio/cmd/mio-sim"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/go-lpc/mio/board"
	"github.com/go-lpc/mio/internal/fakeboard"
	"github.com/go-lpc/mio/proto"
	"github.com/go-lpc/mio/transport"
	"golang.org/x/sync/errgroup"
)

type simConfig struct {
	kind   board.Kind
	layout board.Layout
	spread int
	period time.Duration
	seed   int64
}

func main() {
	log.SetPrefix("mio-sim: ")
	log.SetFlags(0)

	var (
		addr   = flag.String("addr", ":9000", "[ip]:port to listen on")
		kind   = flag.String("kind", "longitudinal", "board kind (longitudinal, transverse, wall, control)")
		nchans = flag.Int("channels", 8, "number of channels")
		clock  = flag.Int("clock-positions", 0, "number of clock position samples")
		snap   = flag.Int("snapshot-size", 0, "number of snapshot samples")
		spread = flag.Int("spread", 50, "maximum distance of the samples to the zero code")
		period = flag.Duration("period", time.Millisecond, "board polling period")
		seed   = flag.Int64("seed", 1234, "seed of the random samples")
	)

	flag.Parse()

	k, err := board.ParseKind(*kind)
	if err != nil {
		log.Fatalf("invalid board kind: %+v", err)
	}

	l := board.Layout{
		Channels:      *nchans,
		MapCount:      *clock,
		SnapshotCount: *snap,
		Zero:          board.DefaultZero,
	}
	l.Size = l.MinSize()

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("could not listen on %q: %+v", *addr, err)
	}
	log.Printf("listening on %q...", lis.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = run(ctx, lis, simConfig{
		kind:   k,
		layout: l,
		spread: *spread,
		period: *period,
		seed:   *seed,
	}, log.Default())
	if err != nil {
		log.Fatalf("could not run simulator: %+v", err)
	}
}

// run serves the connections accepted on lis until ctx is done.
func run(ctx context.Context, lis net.Listener, cfg simConfig, msg *log.Logger) error {
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		<-ctx.Done()
		return lis.Close()
	})

	grp.Go(func() error {
		for i := int64(0); ; i++ {
			conn, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("could not accept connection: %w", err)
			}
			seed := cfg.seed + i
			grp.Go(func() error {
				serve(ctx, conn, cfg, seed, msg)
				return nil
			})
		}
	})

	return grp.Wait()
}

func serve(ctx context.Context, conn net.Conn, cfg simConfig, seed int64, msg *log.Logger) {
	s := transport.NewStream(conn)
	defer s.Close()

	msg.Printf("serving %v...", conn.RemoteAddr())
	defer msg.Printf("serving %v... [done]", conn.RemoteAddr())

	rnd := rand.New(rand.NewSource(seed))
	opts := []fakeboard.Option{fakeboard.WithLogger(msg)}
	if cfg.kind != board.Control {
		opts = append(opts, fakeboard.WithRunData(fakeboard.RandomRunData(rnd, cfg.layout, cfg.spread)))
	}
	brd := fakeboard.New(s, opts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var grp errgroup.Group
	grp.Go(func() error {
		defer cancel()
		return brd.Serve(ctx, cfg.period)
	})
	if cfg.kind == board.Control {
		grp.Go(func() error {
			return move(ctx, brd, rnd, cfg.period)
		})
	}

	err := grp.Wait()
	if err != nil {
		msg.Printf("board %v failed: %+v", conn.RemoteAddr(), err)
	}
}

// move drives the encoders of a simulated Control board.
// The random source is only used by this goroutine.
func move(ctx context.Context, brd *fakeboard.Board, rnd *rand.Rand, period time.Duration) error {
	tick := time.NewTicker(period)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			err := brd.Move(int32(rnd.Intn(21)-10), int32(rnd.Intn(21)-10), uint16(rnd.Intn(1<<4)))
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, proto.ErrClosed) {
					return nil
				}
				return fmt.Errorf("could not move encoders: %w", err)
			}
		}
	}
}
