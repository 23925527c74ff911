package repo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/capiorg/backend-auth/internal/apperr"
)

// keyDetail matches `Key (phone)=(+7...) already exists.` and the
// foreign key variant `Key (avatar_id)=(...) is not present in table ...`.
var keyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)

// translate maps every driver error onto the apperr taxonomy. Errors already
// in the taxonomy pass through. Anything unrecognised becomes a StorageError;
// nothing is dropped.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTaxonomy(err) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return translatePQ(op, pqErr)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return &apperr.StorageError{Op: op, Err: errors.Join(apperr.ErrStorageUnavailable, err)}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &apperr.StorageError{Op: op, Err: errors.Join(apperr.ErrStorageUnavailable, err)}
	}

	return &apperr.StorageError{Op: op, Err: err}
}

func translatePQ(op string, e *pq.Error) error {
	switch e.Code.Name() {
	case "unique_violation":
		return &apperr.ConstraintError{Kind: apperr.Unique, Field: constraintField(e), Err: e}
	case "foreign_key_violation":
		return &apperr.ConstraintError{Kind: apperr.ForeignKey, Field: constraintField(e), Err: e}
	case "not_null_violation":
		field := e.Column
		if field == "" {
			field = constraintField(e)
		}
		return &apperr.ConstraintError{Kind: apperr.NotNull, Field: field, Err: e}
	}

	switch e.Code.Class() {
	case "08", "53", "57":
		// connection exception, insufficient resources, operator intervention
		return &apperr.StorageError{Op: op, Err: errors.Join(apperr.ErrStorageUnavailable, e)}
	}
	return &apperr.StorageError{Op: op, Err: e}
}

// constraintField extracts the column from the error detail, falling back to
// the constraint name with its table prefix and suffix stripped
// (users_phone_key -> phone).
func constraintField(e *pq.Error) string {
	if m := keyDetail.FindStringSubmatch(e.Detail); len(m) == 2 {
		return m[1]
	}
	name := e.Constraint
	if e.Table != "" {
		name = strings.TrimPrefix(name, e.Table+"_")
	}
	for _, suffix := range []string{"_key", "_fkey", "_idx", "_check"} {
		name = strings.TrimSuffix(name, suffix)
	}
	return name
}

func isTaxonomy(err error) bool {
	var ce *apperr.ConstraintError
	var se *apperr.StorageError
	return errors.As(err, &ce) || errors.As(err, &se) || errors.Is(err, apperr.ErrNotFound)
}
