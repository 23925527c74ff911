package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/auth"
	"github.com/capiorg/backend-auth/internal/device"
	"github.com/capiorg/backend-auth/internal/logging"
	"github.com/capiorg/backend-auth/internal/middleware"
	"github.com/capiorg/backend-auth/internal/model"
	"github.com/capiorg/backend-auth/internal/users"
)

const minPasswordLength = 8

// AuthHandler handles authentication endpoints and the caller's own profile
type AuthHandler struct {
	auth     *auth.Service
	users    *users.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, userService *users.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     authService,
		users:    userService,
		validate: newValidator(),
		logger:   logger,
	}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Phone     string  `json:"phone" validate:"required,e164"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Login     string  `json:"login" validate:"required,min=3,max=64"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Phone    string `json:"phone" validate:"required,e164"`
	Password string `json:"password" validate:"required,max=72"`
}

// verifyRequest is the request body for POST /auth/sessions/{uuid}/verify
type verifyRequest struct {
	Code string `json:"code" validate:"required,numeric,len=4"`
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// profileRequest is the request body for PATCH /auth/me. Absent and null
// fields are left unchanged.
type profileRequest struct {
	FirstName model.Optional[string]    `json:"first_name"`
	LastName  model.Optional[string]    `json:"last_name"`
	Password  model.Optional[string]    `json:"password"`
	AvatarID  model.Optional[uuid.UUID] `json:"avatar_id"`
}

// activityRequest is the request body for PATCH /auth/me/activity
type activityRequest struct {
	IsOnline     model.Optional[bool]         `json:"is_online"`
	LastActivity model.Optional[activityTime] `json:"last_activity"`
}

// sessionResponse describes a session awaiting its code
type sessionResponse struct {
	SessionID   uuid.UUID `json:"session_uuid"`
	SessionType string    `json:"session_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Code        string    `json:"code,omitempty"`
}

type registerResponse struct {
	User    model.User      `json:"user"`
	Session sessionResponse `json:"session"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	user, ticket, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Phone:     req.Phone,
		Email:     req.Email,
		Login:     req.Login,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Password:  req.Password,
	}, fingerprint(r))
	if err != nil {
		h.logger.Info("registration failed", zap.String("phone", logging.MaskPhone(req.Phone)), zap.Error(err))
		respondWithFailure(w, h.logger, err)
		return
	}

	user.IsMe = true
	respondWithJSON(w, http.StatusCreated, registerResponse{User: user, Session: toSessionResponse(ticket)})
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	ticket, err := h.auth.Login(r.Context(), req.Phone, req.Password, fingerprint(r))
	if err != nil {
		h.logger.Info("login failed", zap.String("phone", logging.MaskPhone(req.Phone)), zap.Error(err))
		respondWithFailure(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toSessionResponse(ticket))
}

// HandleVerify handles POST /auth/sessions/{uuid}/verify
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req verifyRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	pair, err := h.auth.VerifySession(r.Context(), sessionID, req.Code)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toTokenResponse(pair))
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), auth.StripBearer(req.RefreshToken))
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toTokenResponse(pair))
}

// HandleLogout handles POST /auth/logout (protected)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.auth.Logout(r.Context(), id); err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe handles GET /auth/me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user := id.User
	user.IsMe = true
	respondWithJSON(w, http.StatusOK, user)
}

// HandleUpdateMe handles PATCH /auth/me (protected)
func (h *AuthHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req profileRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	patch, fields := req.toPatch()
	if len(fields) > 0 {
		respondWithJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fields})
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), id.User.ID, patch)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

// HandleActivity handles PATCH /auth/me/activity (protected)
func (h *AuthHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req activityRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	patch := model.ActivityPatch{IsOnline: req.IsOnline}
	if at, ok := req.LastActivity.Get(); ok {
		patch.LastActivity = model.Some(time.Time(at).UTC())
	}

	user, err := h.users.UpdateActivity(r.Context(), id.User.ID, patch)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

func (req profileRequest) toPatch() (model.ProfilePatch, map[string]string) {
	fields := map[string]string{}
	if v, ok := req.FirstName.Get(); ok && !validName(v) {
		fields["first_name"] = "must be between 1 and 100 characters"
	}
	if v, ok := req.LastName.Get(); ok && !validName(v) {
		fields["last_name"] = "must be between 1 and 100 characters"
	}
	if v, ok := req.Password.Get(); ok && (len(v) < minPasswordLength || len(v) > 72) {
		fields["password"] = fmt.Sprintf("must be between %d and 72 characters", minPasswordLength)
	}
	if v, ok := req.AvatarID.Get(); ok && v == uuid.Nil {
		fields["avatar_id"] = "must not be the nil uuid"
	}

	patch := model.ProfilePatch{Password: req.Password, AvatarID: req.AvatarID}
	if v, ok := req.FirstName.Get(); ok {
		patch.FirstName = model.Some(strings.TrimSpace(v))
	}
	if v, ok := req.LastName.Get(); ok {
		patch.LastName = model.Some(strings.TrimSpace(v))
	}
	return patch, fields
}

func validName(s string) bool {
	n := len([]rune(strings.TrimSpace(s)))
	return n > 0 && n <= 100
}

// activityTime accepts an RFC 3339 string or unix seconds
type activityTime time.Time

// accepted last_activity range
var (
	minActivity      = time.Unix(0, 0).UTC()
	maxActivity      = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	errActivityRange = errors.New("last_activity must be between 1970 and 9999")
)

func (t *activityTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("last_activity: %w", err)
		}
		if parsed.Before(minActivity) || !parsed.Before(maxActivity) {
			return errActivityRange
		}
		*t = activityTime(parsed)
		return nil
	}

	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.New("last_activity must be an RFC 3339 string or unix seconds")
	}
	if math.IsNaN(secs) || secs < float64(minActivity.Unix()) || secs >= float64(maxActivity.Unix()) {
		return errActivityRange
	}
	whole := int64(secs)
	*t = activityTime(time.Unix(whole, int64((secs-float64(whole))*float64(time.Second))))
	return nil
}

func fingerprint(r *http.Request) model.SessionDevice {
	return device.Parse(r.UserAgent(), middleware.ClientIP(r))
}

func toSessionResponse(t auth.Ticket) sessionResponse {
	return sessionResponse{
		SessionID:   t.SessionID,
		SessionType: string(t.Type),
		ExpiresAt:   t.ExpiresAt.UTC(),
		Code:        t.Code,
	}
}

func toTokenResponse(p auth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(p.ExpiresIn.Seconds()),
	}
}
