// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mio-ctl is an interactive console sending commands to a single
// Multi-IO or Control board.
//
// Example:
//
//	$> mio-ctl -addr 192.168.1.10:9000
//	mio> status
//	mio> gain 3 400
//	mio> encoders
package main // import "github.com/go-lpc/mio/cmd/mio-ctl"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-lpc/mio/proto"
	"github.com/go-lpc/mio/transport"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("mio-ctl: ")
	log.SetFlags(0)

	var (
		addr    = flag.String("addr", "", "[ip]:port of the board")
		tty     = flag.String("serial", "", "serial line of the board")
		baud    = flag.Int("baud", 115200, "baud rate of the serial line")
		timeout = flag.Duration("timeout", 2*time.Second, "response timeout")
	)

	flag.Parse()

	reg := transport.NewRegistry()
	var (
		s   *transport.Stream
		err error
	)
	switch {
	case *addr != "":
		s, err = reg.Dial(context.Background(), *addr, *timeout)
	case *tty != "":
		s, err = reg.OpenSerial(*tty, *baud)
	default:
		flag.Usage()
		log.Fatalf("missing board address")
	}
	if err != nil {
		log.Fatalf("could not open board: %+v", err)
	}
	defer s.Close()

	err = xmain(s, *timeout)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func xmain(s proto.Stream, timeout time.Duration) error {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	hist := filepath.Join(os.TempDir(), ".mio-ctl.history")
	if f, err := os.Open(hist); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	sh := newShell(s, os.Stdout, timeout)
	for {
		line, err := term.Prompt("mio> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.exec(line)
		if err != nil {
			if errors.Is(err, proto.ErrClosed) {
				return err
			}
			fmt.Fprintf(os.Stdout, "error: %+v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func complete(line string) []string {
	var out []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd.name, strings.ToLower(line)) {
			out = append(out, cmd.name)
		}
	}
	return out
}
