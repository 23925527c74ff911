package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/apperr"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Field  string            `json:"field,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: message})
}

// respondWithFailure maps a service error onto its HTTP status. Credential
// and token failures share one message so callers cannot tell them apart.
func respondWithFailure(w http.ResponseWriter, logger *zap.Logger, err error) {
	var ce *apperr.ConstraintError
	switch {
	case errors.Is(err, apperr.ErrInvalidCredentials), errors.Is(err, apperr.ErrUnauthenticated):
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, apperr.ErrInvalidCode):
		respondWithError(w, http.StatusUnauthorized, "invalid or expired code")
	case errors.Is(err, apperr.ErrAccountDisabled):
		respondWithError(w, http.StatusForbidden, "account is disabled")
	case errors.Is(err, apperr.ErrForbidden):
		respondWithError(w, http.StatusForbidden, "action is not permitted")
	case errors.Is(err, apperr.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "not found")
	case errors.As(err, &ce):
		status := http.StatusUnprocessableEntity
		if ce.Kind == apperr.Unique {
			status = http.StatusConflict
		}
		respondWithJSON(w, status, errorResponse{Error: ce.Kind.String() + " constraint violated", Field: ce.Field})
	case errors.Is(err, apperr.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, apperr.ErrDeliveryFailed):
		logger.Warn("code delivery failed", zap.Error(err))
		respondWithError(w, http.StatusBadGateway, "code delivery failed")
	case errors.Is(err, apperr.ErrStorageUnavailable):
		logger.Error("storage unavailable", zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		logger.Error("request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeAndValidate reads the JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := v.Struct(dst); err != nil {
		respondWithValidation(w, err)
		return false
	}
	return true
}

func respondWithValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		respondWithError(w, http.StatusUnprocessableEntity, "validation failed")
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = validationMessage(fe)
	}
	respondWithJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fields})
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "e164":
		return "must be a phone number in E.164 format"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	case "alphanum":
		return "must contain only letters and digits"
	default:
		return "is invalid (" + strings.ToLower(fe.Tag()) + ")"
	}
}

// newValidator returns a validator reporting JSON field names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
