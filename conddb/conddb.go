// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb reads the configuration of the acquisition devices from
// the configuration database.
//
// The database holds two tables:
//   - devices(name, position): the devices to read, in rack order,
//   - settings(device, name, value): the settings of each device, an empty
//     device name denoting the settings shared by the whole rack.
package conddb // import "github.com/go-lpc/mio/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-lpc/mio/config"
	_ "github.com/go-sql-driver/mysql"
)

var (
	host = "localhost"
	usr  = "username"
	pwd  = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to retrieve the devices configuration.
type DB struct {
	db   *sql.DB
	name string // name of the configuration database
}

// Open opens a connection to the configuration database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Devices returns the names of the devices, in rack order.
func (db *DB) Devices(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var names []string
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM devices ORDER BY position",
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not get device name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for devices: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving devices: %w", err)
	}

	return names, nil
}

// Settings returns the settings of device, keyed as "<device>.<name>".
// The empty device name returns the settings shared by the rack, keyed
// without prefix.
func (db *DB) Settings(ctx context.Context, device string) (config.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name, value FROM settings WHERE device=?",
		device,
	)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not query settings of %q: %w", device, err)
	}
	defer rows.Close()

	prefix := ""
	if device != "" {
		prefix = device + "."
	}

	set := make(config.Settings)
	i := 0
	for rows.Next() {
		var k, v string
		err = rows.Scan(&k, &v)
		if err != nil {
			return nil, fmt.Errorf("conddb: could not scan row %d of settings of %q: %w", i, device, err)
		}
		i++
		set[prefix+k] = v
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conddb: could not scan db for settings of %q: %w", device, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conddb: context error while retrieving settings of %q: %w", device, err)
	}

	return set, nil
}

// Load returns the device names and the settings of the whole rack,
// merged over the default settings.
func (db *DB) Load(ctx context.Context) ([]string, config.Settings, error) {
	names, err := db.Devices(ctx)
	if err != nil {
		return nil, nil, err
	}

	set, err := db.Settings(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	set = config.Defaults().Merge(set)

	for _, name := range names {
		dev, err := db.Settings(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		set = set.Merge(dev)
	}

	return names, set, nil
}
