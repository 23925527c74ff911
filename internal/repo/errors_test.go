package repo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/capiorg/backend-auth/internal/apperr"
)

func TestTranslate_Nil(t *testing.T) {
	assert.NoError(t, translate("op", nil))
}

func TestTranslate_NoRows(t *testing.T) {
	err := translate("users.get", fmt.Errorf("scan: %w", sql.ErrNoRows))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTranslate_UniqueFromDetail(t *testing.T) {
	pqErr := &pq.Error{
		Code:       "23505",
		Detail:     "Key (phone)=(+70000000001) already exists.",
		Table:      "users",
		Constraint: "users_phone_key",
	}
	err := translate("users.create", pqErr)

	assert.ErrorIs(t, err, apperr.ErrUniqueViolation)
	assert.Equal(t, "phone", apperr.Field(err))
}

func TestTranslate_UniqueFromConstraintName(t *testing.T) {
	pqErr := &pq.Error{Code: "23505", Table: "users", Constraint: "users_login_key"}
	err := translate("users.create", pqErr)
	assert.Equal(t, "login", apperr.Field(err))
}

func TestTranslate_ForeignKey(t *testing.T) {
	pqErr := &pq.Error{
		Code:   "23503",
		Detail: `Key (avatar_id)=(0190c7a2-0000-7000-8000-000000000000) is not present in table "documents".`,
	}
	err := translate("users.update", pqErr)
	assert.ErrorIs(t, err, apperr.ErrForeignKeyViolation)
	assert.Equal(t, "avatar_id", apperr.Field(err))
}

func TestTranslate_NotNull(t *testing.T) {
	err := translate("users.create", &pq.Error{Code: "23502", Column: "login"})
	assert.ErrorIs(t, err, apperr.ErrNotNullViolation)
	assert.Equal(t, "login", apperr.Field(err))
}

func TestTranslate_Unavailable(t *testing.T) {
	cases := map[string]error{
		"bad conn":          driver.ErrBadConn,
		"conn done":         sql.ErrConnDone,
		"deadline":          context.DeadlineExceeded,
		"connection class":  &pq.Error{Code: "08006"},
		"too many clients":  &pq.Error{Code: "53300"},
		"admin shutdown":    &pq.Error{Code: "57P01"},
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			err := translate("op", cause)
			var se *apperr.StorageError
			assert.True(t, errors.As(err, &se))
			assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
		})
	}
}

func TestTranslate_UnknownIsNeverDropped(t *testing.T) {
	cause := errors.New("something odd")
	err := translate("sessions.create", cause)

	var se *apperr.StorageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "sessions.create", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, apperr.ErrStorageUnavailable)

	syntax := translate("op", &pq.Error{Code: "42601"})
	assert.True(t, errors.As(syntax, &se))
}

func TestTranslate_PassThrough(t *testing.T) {
	ce := &apperr.ConstraintError{Kind: apperr.Unique, Field: "email"}
	assert.Same(t, ce, translate("op", ce))
}
