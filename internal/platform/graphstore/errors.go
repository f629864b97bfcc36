package graphstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every operation after a failed Connect.
	ErrNotConnected = errors.New("graphstore: not connected")
	// ErrAuthExpired is what token transports return for a rejected credential.
	ErrAuthExpired = errors.New("graphstore: authentication expired")
)

// ConnectionError aggregates the failure of every configured strategy.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("graphstore: no backend reachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError is a store-side rejection of a statement.
type QueryError struct {
	Backend string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Backend == "" {
		return "graphstore: query failed: " + e.Message
	}
	return fmt.Sprintf("graphstore: %s query failed: %s", e.Backend, e.Message)
}

func (e *QueryError) Unwrap() error { return e.Err }

// SafetyRejection is returned before execution when a statement would mutate the graph.
type SafetyRejection struct {
	Keyword string
}

func (e *SafetyRejection) Error() string {
	return fmt.Sprintf("graphstore: refusing mutating statement (keyword %q)", e.Keyword)
}
