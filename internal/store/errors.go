package store

import (
	"errors"
	"fmt"
)

// NotFoundError reports a lookup that matched no row.
type NotFoundError struct {
	Entity string // "station" or "reading"
	Key    string // human-readable lookup key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// ConstraintError reports a rule the backend enforced and rejected, e.g. a
// reading inserted with a dangling station_id. It wraps the driver error.
type ConstraintError struct {
	Op         string // store operation, e.g. "insert reading"
	Constraint string // constraint name or kind reported by the backend
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: constraint violated (%s): %v", e.Op, e.Constraint, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConstraint reports whether err is a ConstraintError.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}
