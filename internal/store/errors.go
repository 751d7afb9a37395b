package store

import (
	"errors"
	"fmt"
)

// ErrTableLocked indicates a feature table could not be written because a
// dependent published service still holds its lock. Surfaced when a
// statement hits the configured lock_timeout.
var ErrTableLocked = errors.New("feature table locked by a dependent service")

// PersistenceError is any store failure, scoped to the network and operation
// that produced it so one network's failure never aborts the others.
type PersistenceError struct {
	Network string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s (network %s): %v", e.Op, e.Network, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
