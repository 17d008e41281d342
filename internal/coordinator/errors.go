package coordinator

import (
	"errors"
	"fmt"

	"github.com/mini-cassandra/mini-cassandra/pkg/types"
)

var (
	ErrUnavailable  = errors.New("coordinator: not enough live replicas")
	ErrWriteTimeout = errors.New("coordinator: write timed out")
	ErrReadTimeout  = errors.New("coordinator: read timed out")
	ErrNoKeyspace   = errors.New("coordinator: no keyspace selected")
	ErrInvalid      = errors.New("coordinator: invalid statement")
)

// UnavailableError is returned at dispatch time when the replicas already
// known to be down make the consistency threshold unreachable.
type UnavailableError struct {
	Consistency types.ConsistencyLevel
	Required    int
	Alive       int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("coordinator: consistency %s requires %d replicas, only %d alive", e.Consistency, e.Required, e.Alive)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// TimeoutError is returned when the open-query deadline expires before the
// consistency threshold is met, or when enough replicas error that the
// threshold can no longer be reached.
type TimeoutError struct {
	Write       bool
	Consistency types.ConsistencyLevel
	Received    int
	Required    int
}

func (e *TimeoutError) Error() string {
	kind := "read"
	if e.Write {
		kind = "write"
	}
	return fmt.Sprintf("coordinator: %s at %s timed out with %d of %d acks", kind, e.Consistency, e.Received, e.Required)
}

func (e *TimeoutError) Unwrap() error {
	if e.Write {
		return ErrWriteTimeout
	}
	return ErrReadTimeout
}
