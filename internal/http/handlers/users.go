package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/middleware"
	"github.com/capiorg/backend-auth/internal/users"
)

// UsersHandler serves profile reads subject to the view policy
type UsersHandler struct {
	users  *users.Service
	logger *zap.Logger
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(userService *users.Service, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{users: userService, logger: logger}
}

// HandleList handles GET /users
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	list, err := h.users.List(r.Context(), id)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /users/{uuid}
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	target, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.users.Get(r.Context(), id, target)
	if err != nil {
		respondWithFailure(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}
