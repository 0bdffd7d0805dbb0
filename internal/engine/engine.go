// Package engine defines the query engine the notebook runs cells against,
// and an in-process implementation on top of SQLite.
package engine

import (
	"context"
	"errors"
)

// ErrClosed is returned by every operation on an engine after Close.
var ErrClosed = errors.New("engine: connection closed")

// Column describes one result column
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is a fully materialized statement result. Every row holds exactly
// len(Columns) values in column order.
type Result struct {
	Columns []Column
	Rows    [][]interface{}
}

// Engine executes statements against loaded data. Implementations are not
// required to support concurrent Query calls.
type Engine interface {
	// Query executes a single statement. Cancelling ctx interrupts it when
	// the implementation supports cooperative interruption.
	Query(ctx context.Context, sql string) (*Result, error)
	// RegisterFile makes data addressable by name from table functions.
	RegisterFile(name string, data []byte) error
	// ReadFile returns the bytes of an engine-resident artifact, such as the
	// target of a COPY ... TO statement.
	ReadFile(name string) ([]byte, error)
	// Close tears down the engine. It must not wait for in-flight queries.
	Close() error
}

// Factory creates a fresh engine; sessions call it on every (re)bootstrap.
type Factory func(ctx context.Context) (Engine, error)
