// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"log"
	"os"

	"github.com/go-lpc/mio/proto"
)

type options struct {
	msg  *log.Logger
	sess []proto.Option
}

func newOptions() options {
	return options{
		msg: log.New(os.Stdout, "mio: ", 0),
	}
}

// Option configures a Device.
type Option func(*options)

// WithLogger sets the logger of the device and of its protocol session.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *options) {
		cfg.msg = msg
	}
}

// WithSession configures the protocol session of the device.
func WithSession(opts ...proto.Option) Option {
	return func(cfg *options) {
		cfg.sess = append(cfg.sess, opts...)
	}
}
