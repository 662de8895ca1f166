// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert watches the protocol counters of a rack of devices and
// notifies the operators by mail when communication degrades.
package alert // import "github.com/go-lpc/mio/internal/alert"

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/mio/board"
	mail "gopkg.in/gomail.v2"
)

// maxAlerts is the number of mails sent per device before going quiet.
const maxAlerts = 5

// Thresholds are the counter increases, over one check period, that
// trigger an alert. A zero threshold disables the check.
type Thresholds struct {
	ChecksumErrors uint64
	Timeouts       uint64
	Resyncs        uint64
}

// Alert describes a device in trouble.
type Alert struct {
	Device string
	Reason string
}

func (a Alert) String() string { return a.Device + ": " + a.Reason }

// Watchdog compares successive snapshots of the device counters.
type Watchdog struct {
	msg  *log.Logger
	thr  Thresholds
	src  func() []board.DeviceStats
	send func(subject, body string) error

	prev   map[string]board.DeviceStats
	alerts map[string]int
}

// New creates a watchdog reading the counters from src.
// Alerts are mailed with the credentials found in the MAIL_USERNAME,
// MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables.
func New(msg *log.Logger, thr Thresholds, src func() []board.DeviceStats) *Watchdog {
	if msg == nil {
		msg = log.New(os.Stdout, "alert: ", 0)
	}
	return &Watchdog{
		msg:    msg,
		thr:    thr,
		src:    src,
		send:   newMailer(msg).send,
		prev:   make(map[string]board.DeviceStats),
		alerts: make(map[string]int),
	}
}

// Check takes a new snapshot of the counters and returns the alerts
// raised since the previous snapshot.
func (w *Watchdog) Check() []Alert {
	var alerts []Alert
	for _, cur := range w.src() {
		prev, ok := w.prev[cur.Name]
		w.prev[cur.Name] = cur
		if !ok {
			if !cur.Alive {
				alerts = append(alerts, Alert{cur.Name, "stream closed"})
			}
			continue
		}

		if prev.Alive && !cur.Alive {
			alerts = append(alerts, Alert{cur.Name, "stream closed"})
			continue
		}
		if !cur.Alive {
			continue
		}

		for _, c := range []struct {
			name    string
			thr     uint64
			cur, pr uint64
		}{
			{"checksum errors", w.thr.ChecksumErrors, cur.ChecksumErrors, prev.ChecksumErrors},
			{"timeouts", w.thr.Timeouts, cur.Timeouts, prev.Timeouts},
			{"resyncs", w.thr.Resyncs, cur.Resyncs, prev.Resyncs},
		} {
			if c.thr == 0 {
				continue
			}
			if d := c.cur - c.pr; d >= c.thr {
				alerts = append(alerts, Alert{
					cur.Name,
					fmt.Sprintf("%d new %s (threshold=%d)", d, c.name, c.thr),
				})
			}
		}

		if cur.Packets == prev.Packets && cur.Sent > prev.Sent {
			alerts = append(alerts, Alert{cur.Name, "no frame received"})
		}
	}
	return alerts
}

// Notify logs the alerts and mails them, up to a few mails per device.
func (w *Watchdog) Notify(alerts []Alert) {
	for _, a := range alerts {
		w.msg.Printf("%v", a)
		w.alerts[a.Device]++
		if w.alerts[a.Device] > maxAlerts {
			continue
		}
		err := w.send(
			fmt.Sprintf("[mio] device alert: %q", a.Device),
			fmt.Sprintf("device: %q\nreason: %s\ntime: %v", a.Device, a.Reason, time.Now().UTC()),
		)
		if err != nil {
			w.msg.Printf("could not send mail alert: %+v", err)
		}
	}
}

// Run checks the counters every period until ctx is done.
func (w *Watchdog) Run(ctx context.Context, period time.Duration) {
	tick := time.NewTicker(period)
	defer tick.Stop()

	w.Check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			w.Notify(w.Check())
		}
	}
}

type mailer struct {
	msg  *log.Logger
	usr  string
	pwd  string
	srv  string
	port int
	tgts []string
}

func newMailer(msg *log.Logger) *mailer {
	port, _ := strconv.Atoi(os.Getenv("MAIL_PORT"))
	var tgts []string
	for _, tgt := range strings.Split(os.Getenv("MAIL_TGTS"), ",") {
		if tgt = strings.TrimSpace(tgt); tgt != "" {
			tgts = append(tgts, tgt)
		}
	}
	return &mailer{
		msg:  msg,
		usr:  os.Getenv("MAIL_USERNAME"),
		pwd:  os.Getenv("MAIL_PASSWORD"),
		srv:  os.Getenv("MAIL_SERVER"),
		port: port,
		tgts: tgts,
	}
}

func (m *mailer) send(subject, body string) error {
	if m.usr == "" || m.pwd == "" || m.srv == "" || m.port == 0 || len(m.tgts) == 0 {
		return fmt.Errorf("alert: missing mail credentials")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.usr)
	msg.SetHeader("Bcc", m.tgts...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(m.srv, m.port, m.usr, m.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		return fmt.Errorf("alert: could not send mail: %w", err)
	}
	return nil
}
