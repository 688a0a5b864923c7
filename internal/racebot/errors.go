package racebot

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	ErrAlreadyStarted = errors.New("supervisor already started")
	ErrNotStarted     = errors.New("supervisor not started")
)

// QueryError is a failed view call.
type QueryError struct {
	Function string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Function, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// DecodeError is a view response that does not have the expected shape.
type DecodeError struct {
	Function string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Function, e.Reason)
}

// TransactionError is a submission that was rejected, failed on chain or did
// not confirm in time.
type TransactionError struct {
	Action Action
	RaceID uint64
	Hash   string
	Err    error
}

func (e *TransactionError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s race %d (tx %s): %v", e.Action, e.RaceID, e.Hash, e.Err)
	}
	return fmt.Sprintf("%s race %d: %v", e.Action, e.RaceID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered panic from a race task or a cycle.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
