// Package executor runs validated read-only SQL against the analytics
// database and shapes the rows for API responses and chart building.
package executor

import (
	"context"
	"time"
)

type Request struct {
	SQL     string
	Timeout time.Duration
}

type Result struct {
	Columns  []string
	Rows     []map[string]any
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// DBError is a database rejection in the form the repair loop feeds
// back to the generator: the SQLSTATE code plus the server message.
type DBError struct {
	Code    string
	Message string
}

func (e *DBError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}
