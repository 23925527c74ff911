package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/cache"
	"github.com/capiorg/backend-auth/internal/metrics"
	"github.com/capiorg/backend-auth/internal/model"
)

// Identity is what a gated request knows about its caller
type Identity struct {
	User      model.User
	SessionID uuid.UUID
}

// UserLoader loads a user with IsMe computed against viewer
type UserLoader interface {
	GetByID(ctx context.Context, id, viewer uuid.UUID) (model.User, error)
}

// Gate resolves bearer tokens into identities and enforces status and role
// predicates. It never mutates anything.
type Gate struct {
	tokens   *TokenService
	users    UserLoader
	statuses map[model.StatusID]bool
	roles    map[model.RoleID]bool
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

type GateOption func(*Gate)

// WithStatuses replaces the allowed statuses
func WithStatuses(statuses ...model.StatusID) GateOption {
	return func(g *Gate) {
		g.statuses = make(map[model.StatusID]bool, len(statuses))
		for _, s := range statuses {
			g.statuses[s] = true
		}
	}
}

// WithRoles replaces the allowed roles
func WithRoles(roles ...model.RoleID) GateOption {
	return func(g *Gate) {
		g.roles = make(map[model.RoleID]bool, len(roles))
		for _, r := range roles {
			g.roles[r] = true
		}
	}
}

// WithCache serves user lookups from c for ttl
func WithCache(c cache.Cache, ttl time.Duration) GateOption {
	return func(g *Gate) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

// NewGate creates a gate allowing ACTIVE users of every role
func NewGate(tokens *TokenService, users UserLoader, logger *zap.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
	WithStatuses(model.StatusActive)(g)
	WithRoles(model.AllRoles()...)(g)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// With returns a copy of g with opts applied
func (g *Gate) With(opts ...GateOption) *Gate {
	clone := *g
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// Resolve verifies an access token and returns the caller's identity
func (g *Gate) Resolve(ctx context.Context, raw string) (Identity, error) {
	sub, err := g.tokens.Verify(raw)
	if err != nil {
		return Identity{}, err
	}
	if sub.Kind != KindAccess {
		return Identity{}, apperr.ErrUnauthenticated
	}

	user, err := g.loadUser(ctx, sub.UserID, sub.SessionID)
	if err != nil {
		return Identity{}, err
	}
	if !g.statuses[user.StatusID] {
		return Identity{}, apperr.ErrAccountDisabled
	}
	if !g.roles[user.RoleID] {
		return Identity{}, apperr.ErrForbidden
	}
	return Identity{User: user, SessionID: sub.SessionID}, nil
}

func (g *Gate) loadUser(ctx context.Context, userID, sessionID uuid.UUID) (model.User, error) {
	key := cache.CurrentUserKey(userID, sessionID)
	if g.cache != nil {
		if user, ok := g.cached(ctx, key); ok {
			return user, nil
		}
	}

	user, err := g.users.GetByID(ctx, userID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return model.User{}, apperr.ErrUnauthenticated
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load caller: %w", err)
	}

	if g.cache != nil {
		if b, err := json.Marshal(user); err == nil {
			if err := g.cache.Set(ctx, key, b, g.cacheTTL); err != nil {
				g.logger.Warn("identity cache set failed", zap.Error(err))
			}
		}
	}
	return user, nil
}

func (g *Gate) cached(ctx context.Context, key string) (model.User, bool) {
	b, err := g.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return model.User{}, false
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		g.logger.Warn("identity cache get failed", zap.Error(err))
		return model.User{}, false
	}

	var user model.User
	if err := json.Unmarshal(b, &user); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return model.User{}, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return user, true
}
