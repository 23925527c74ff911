// Package apperr defines the error taxonomy shared by stores, services and
// handlers. Callers compare with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("action is not permitted")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrDeliveryFailed     = errors.New("code delivery failed")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Matched by ConstraintError.Is
	ErrUniqueViolation     = errors.New("unique constraint violated")
	ErrForeignKeyViolation = errors.New("foreign key constraint violated")
	ErrNotNullViolation    = errors.New("not-null constraint violated")
)

// ConstraintKind classifies an integrity violation reported by storage
type ConstraintKind int

const (
	Unique ConstraintKind = iota + 1
	ForeignKey
	NotNull
)

func (k ConstraintKind) String() string {
	switch k {
	case Unique:
		return "unique"
	case ForeignKey:
		return "foreign_key"
	case NotNull:
		return "not_null"
	default:
		return "unknown"
	}
}

// ConstraintError reports which field violated which constraint
type ConstraintError struct {
	Kind  ConstraintKind
	Field string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s constraint violated on %q", e.Kind, e.Field)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

func (e *ConstraintError) Is(target error) bool {
	switch target {
	case ErrUniqueViolation:
		return e.Kind == Unique
	case ErrForeignKeyViolation:
		return e.Kind == ForeignKey
	case ErrNotNullViolation:
		return e.Kind == NotNull
	}
	return false
}

// StorageError is a storage failure that fits no other category
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Field returns the offending field of a constraint error, or "".
func Field(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}
