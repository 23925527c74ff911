package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/apperr"
)

func TestRespondWithFailure_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("verify: %w", apperr.ErrUnauthenticated), http.StatusUnauthorized},
		{apperr.ErrInvalidCode, http.StatusUnauthorized},
		{apperr.ErrAccountDisabled, http.StatusForbidden},
		{apperr.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("get user: %w", apperr.ErrNotFound), http.StatusNotFound},
		{&apperr.ConstraintError{Kind: apperr.Unique, Field: "login"}, http.StatusConflict},
		{&apperr.ConstraintError{Kind: apperr.ForeignKey, Field: "avatar_id"}, http.StatusUnprocessableEntity},
		{&apperr.ConstraintError{Kind: apperr.NotNull, Field: "login"}, http.StatusUnprocessableEntity},
		{apperr.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("%w: timeout", apperr.ErrDeliveryFailed), http.StatusBadGateway},
		{&apperr.StorageError{Op: "ping", Err: errors.Join(apperr.ErrStorageUnavailable, errors.New("refused"))}, http.StatusServiceUnavailable},
		{&apperr.StorageError{Op: "users.list", Err: errors.New("syntax error")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondWithFailure(rec, zap.NewNop(), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestRespondWithFailure_ConstraintField(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithFailure(rec, zap.NewNop(), fmt.Errorf("register: %w", &apperr.ConstraintError{Kind: apperr.Unique, Field: "phone"}))

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "phone", body.Field)
	assert.Equal(t, "unique constraint violated", body.Error)
}

func TestRespondWithFailure_StorageDetailsNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithFailure(rec, zap.NewNop(), &apperr.StorageError{Op: "users.list", Err: errors.New(`relation "users" does not exist`)})
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestActivityTime_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2024-03-01T15:00:00+03:00"`, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{`"2024-03-01T12:00:00.5Z"`, time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)},
		{`1700000000`, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)},
		{`1700000000.25`, time.Date(2023, 11, 14, 22, 13, 20, 250_000_000, time.UTC)},
	}
	for _, tt := range tests {
		var got activityTime
		require.NoError(t, json.Unmarshal([]byte(tt.in), &got), tt.in)
		assert.True(t, tt.want.Equal(time.Time(got)), "%s: got %v", tt.in, time.Time(got))
	}

	var bad activityTime
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))
	for _, in := range []string{`1e300`, `1e400`, `-1`, `253402300800`, `"1969-12-31T23:59:59Z"`} {
		assert.Error(t, json.Unmarshal([]byte(in), &bad), in)
	}
	require.NoError(t, json.Unmarshal([]byte(`253402300799`), &bad))
	assert.Equal(t, 9999, time.Time(bad).UTC().Year())
}

func TestDecodeAndValidate_ActivityOutOfRange(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"last_activity":1e300}`))
	var dst activityRequest
	assert.False(t, decodeAndValidate(rec, req, newValidator(), &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeAndValidate(t *testing.T) {
	v := newValidator()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"+79990000001","password":"x"}`))
	var ok loginRequest
	assert.True(t, decodeAndValidate(rec, req, v, &ok))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"79990000001"}`))
	var bad loginRequest
	assert.False(t, decodeAndValidate(rec, req, v, &bad))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "must be a phone number in E.164 format", body.Fields["phone"])
	assert.Equal(t, "is required", body.Fields["password"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":`))
	assert.False(t, decodeAndValidate(rec, req, v, &bad))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyRequest_CodeShape(t *testing.T) {
	v := newValidator()
	assert.NoError(t, v.Struct(verifyRequest{Code: "0042"}))
	assert.Error(t, v.Struct(verifyRequest{Code: "42"}))
	assert.Error(t, v.Struct(verifyRequest{Code: "abcd"}))
}
