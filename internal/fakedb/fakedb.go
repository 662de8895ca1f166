// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb provides an in-memory database/sql driver, named "fakedb",
// answering queries with canned result sets.
package fakedb // import "github.com/go-lpc/mio/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
)

// Query is a query received by the driver.
type Query struct {
	SQL  string
	Args []driver.Value
}

var db struct {
	run sync.Mutex // serializes calls to Run

	mu      sync.Mutex
	results []Rows
	queries []Query
}

// Run calls f with the driver answering the successive queries with the
// given result sets, in order. Run returns the queries received during f.
func Run(ctx context.Context, f func(ctx context.Context) error, results ...Rows) ([]Query, error) {
	db.run.Lock()
	defer db.run.Unlock()

	db.mu.Lock()
	db.results = append([]Rows(nil), results...)
	db.queries = nil
	db.mu.Unlock()

	err := f(ctx)

	db.mu.Lock()
	defer db.mu.Unlock()
	queries := db.queries
	db.results = nil
	db.queries = nil
	return queries, err
}

func next(query string, args []driver.Value) (driver.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.queries = append(db.queries, Query{SQL: query, Args: args})
	if len(db.results) == 0 {
		return nil, fmt.Errorf("fakedb: no result set for query %q", query)
	}
	rows := db.results[0]
	db.results = db.results[1:]
	if rows.Err != nil {
		return nil, rows.Err
	}
	return &cursor{names: rows.Names, values: rows.Values}, nil
}

func init() {
	sql.Register("fakedb", &Driver{})
}

// Driver is the fakedb database/sql driver.
type Driver struct{}

func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &conn{}, nil
}

type conn struct{}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{query: query}, nil
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("fakedb: transactions not supported")
}

func (c *conn) Ping(ctx context.Context) error { return ctx.Err() }

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vs := make([]driver.Value, len(args))
	for i, arg := range args {
		vs[i] = arg.Value
	}
	return next(query, vs)
}

type stmt struct {
	query string
}

func (stmt *stmt) Close() error  { return nil }
func (stmt *stmt) NumInput() int { return -1 }

func (stmt *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, fmt.Errorf("fakedb: exec not supported")
}

func (stmt *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return next(stmt.query, args)
}

// Rows is a canned result set.
// A non-nil Err makes the query fail with that error.
type Rows struct {
	Names  []string
	Values [][]driver.Value
	Err    error
}

type cursor struct {
	names  []string
	values [][]driver.Value
}

func (cur *cursor) Columns() []string { return cur.names }
func (cur *cursor) Close() error      { return nil }

func (cur *cursor) Next(dest []driver.Value) error {
	if len(cur.values) == 0 {
		return io.EOF
	}
	copy(dest, cur.values[0])
	cur.values = cur.values[1:]
	return nil
}

var (
	_ driver.Driver         = (*Driver)(nil)
	_ driver.Conn           = (*conn)(nil)
	_ driver.Pinger         = (*conn)(nil)
	_ driver.QueryerContext = (*conn)(nil)
	_ driver.Stmt           = (*stmt)(nil)
	_ driver.Rows           = (*cursor)(nil)
)
