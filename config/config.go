// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides the key/value settings used to set up the
// acquisition devices, read from a YAML file.
package config // import "github.com/go-lpc/mio/config"

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/mio/peak"
	"gopkg.in/yaml.v3"
)

// Settings is a flat set of configuration values, keyed by dotted names
// such as "long-1.channel.0.peak-type".
type Settings map[string]string

// Get returns the raw value stored under key.
func (set Settings) Get(key string) (string, bool) {
	v, ok := set[key]
	return strings.TrimSpace(v), ok
}

// Keys returns the sorted list of keys.
func (set Settings) Keys() []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a copy of set overridden by the values of o.
func (set Settings) Merge(o Settings) Settings {
	out := make(Settings, len(set)+len(o))
	for k, v := range set {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// String returns the value stored under key, or def.
func (set Settings) String(key, def string) string {
	v, ok := set.Get(key)
	if !ok || v == "" {
		return def
	}
	return v
}

// Int returns the integer stored under key, or def if there is none.
// A malformed value yields def and an error.
func (set Settings) Int(key string, def int) (int, error) {
	v, ok := set.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return def, fmt.Errorf("config: could not parse %q=%q as an integer: %w", key, v, err)
	}
	return int(i), nil
}

// Float returns the floating point value stored under key, or def.
func (set Settings) Float(key string, def float64) (float64, error) {
	v, ok := set.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("config: could not parse %q=%q as a float: %w", key, v, err)
	}
	return f, nil
}

// Bool returns the boolean stored under key, or def.
func (set Settings) Bool(key string, def bool) (bool, error) {
	v, ok := set.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("config: could not parse %q=%q as a boolean: %w", key, v, err)
	}
	return b, nil
}

// Duration returns the duration stored under key, or def.
func (set Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := set.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: could not parse %q=%q as a duration: %w", key, v, err)
	}
	return d, nil
}

// Ints returns the comma separated list of integers stored under key.
// A missing key yields a nil slice.
func (set Settings) Ints(key string) ([]int, error) {
	v, ok := set.Get(key)
	if !ok || v == "" {
		return nil, nil
	}
	toks := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]int, len(toks))
	for i, tok := range toks {
		x, err := strconv.ParseInt(tok, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("config: could not parse %q=%q (item %d) as an integer: %w", key, v, i, err)
		}
		out[i] = int(x)
	}
	return out, nil
}

// Policy returns the peak policy stored under key, or def.
// An unknown policy name yields def and an error.
func (set Settings) Policy(key string, def peak.Policy) (peak.Policy, error) {
	v, ok := set.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	pol, ok := peak.ParsePolicy(v, def)
	if !ok {
		return def, fmt.Errorf("config: unknown peak type %q=%q", key, v)
	}
	return pol, nil
}

// Device holds the settings of one device, keyed without the device prefix.
type Device struct {
	Name     string   `yaml:"name"`
	Settings Settings `yaml:",inline"`
}

// File is the content of a configuration file.
type File struct {
	Devices  []Device `yaml:"devices"`
	Settings Settings `yaml:"settings"`
}

// Defaults returns the settings used when a configuration file does not
// provide them.
func Defaults() Settings {
	return Settings{
		"daq.poll-period":       "100ms",
		"daq.response-timeout":  "2s",
		"daq.dial-timeout":      "5s",
		"daq.serial-baud":       "115200",
		"daq.wait-step":         "10ms",
		"daq.max-waits":         "20",
		"alert.period":          "1m",
		"alert.checksum-errors": "100",
		"alert.timeouts":        "100",
		"alert.resyncs":         "1000",
	}
}

// Load reads the YAML configuration file at fname.
func Load(fname string) (*File, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("config: could not read %q: %w", fname, err)
	}

	var f File
	err = yaml.Unmarshal(raw, &f)
	if err != nil {
		return nil, fmt.Errorf("config: could not parse %q: %w", fname, err)
	}

	seen := make(map[string]bool, len(f.Devices))
	for i, dev := range f.Devices {
		switch {
		case dev.Name == "":
			return nil, fmt.Errorf("config: device %d in %q has no name", i, fname)
		case strings.Contains(dev.Name, "."):
			return nil, fmt.Errorf("config: invalid device name %q in %q", dev.Name, fname)
		case seen[dev.Name]:
			return nil, fmt.Errorf("config: duplicate device %q in %q", dev.Name, fname)
		}
		seen[dev.Name] = true
	}

	return &f, nil
}

// DeviceNames returns the names of the configured devices, in file order.
func (f *File) DeviceNames() []string {
	names := make([]string, len(f.Devices))
	for i, dev := range f.Devices {
		names[i] = dev.Name
	}
	return names
}

// Flatten returns the defaults overridden by the file settings, with the
// per-device settings stored under "<device>.<key>".
func (f *File) Flatten() Settings {
	out := Defaults().Merge(f.Settings)
	for _, dev := range f.Devices {
		for k, v := range dev.Settings {
			out[dev.Name+"."+k] = v
		}
	}
	return out
}
