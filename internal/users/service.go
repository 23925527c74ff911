// Package users implements profile reads and the caller's own profile and
// activity updates.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/auth"
	"github.com/capiorg/backend-auth/internal/cache"
	"github.com/capiorg/backend-auth/internal/model"
	"github.com/capiorg/backend-auth/internal/repo"
)

// Service handles user profile operations
type Service struct {
	store       repo.Store
	policy      auth.Policy
	invalidator *cache.Invalidator
	logger      *zap.Logger
}

// NewService creates a new users service
func NewService(store repo.Store, policy auth.Policy, invalidator *cache.Invalidator, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		policy:      policy,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Get returns target as seen by caller. Callers always see themselves;
// other profiles are subject to the view policy.
func (s *Service) Get(ctx context.Context, caller auth.Identity, target uuid.UUID) (model.User, error) {
	user, err := s.store.Repos().Users.GetByID(ctx, target, caller.User.ID)
	if err != nil {
		// a missing profile looks the same as a hidden one
		if errors.Is(err, apperr.ErrNotFound) && target != caller.User.ID {
			return model.User{}, apperr.ErrForbidden
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	if user.IsMe {
		return user, nil
	}
	if err := s.policy.Allow(caller.User.RoleID, user.RoleID); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// List returns the profiles caller may view, including their own
func (s *Service) List(ctx context.Context, caller auth.Identity) ([]model.User, error) {
	all, err := s.store.Repos().Users.List(ctx, caller.User.ID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	visible := make([]model.User, 0, len(all))
	for _, u := range all {
		if u.IsMe || s.policy.IsAllowed(caller.User.RoleID, u.RoleID) {
			visible = append(visible, u)
		}
	}
	return visible, nil
}

// UpdateActivity writes the heartbeat fields that are present. Concurrent
// heartbeats are last-writer-wins.
func (s *Service) UpdateActivity(ctx context.Context, userID uuid.UUID, p model.ActivityPatch) (model.User, error) {
	upd := model.UserUpdate{
		IsOnline:     p.IsOnline,
		LastActivity: p.LastActivity,
	}
	repos := s.store.Repos()
	if err := repos.Users.Update(ctx, userID, upd); err != nil {
		return model.User{}, fmt.Errorf("update activity: %w", err)
	}
	user, err := repos.Users.GetByID(ctx, userID, userID)
	if err != nil {
		return model.User{}, fmt.Errorf("update activity: %w", err)
	}
	return user, nil
}

// UpdateProfile applies the fields present in p. A new password is hashed.
// A new avatar is first registered as a document and the document's own id
// is stored. Cached identities of the user are dropped after commit.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, p model.ProfilePatch) (model.User, error) {
	upd := model.UserUpdate{
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
	if pw, ok := p.Password.Get(); ok {
		digest, err := auth.HashPassword(pw)
		if err != nil {
			return model.User{}, err
		}
		upd.PasswordHash = model.Some(digest)
	}

	var user model.User
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		if docID, ok := p.AvatarID.Get(); ok {
			doc := model.Document{DocumentID: docID}
			if err := r.Documents.Create(ctx, &doc); err != nil {
				return err
			}
			upd.AvatarID = model.Some(doc.ID)
		}
		if err := r.Users.Update(ctx, userID, upd); err != nil {
			return err
		}
		var err error
		user, err = r.Users.GetByID(ctx, userID, userID)
		return err
	})
	if err != nil {
		return model.User{}, fmt.Errorf("update profile: %w", err)
	}

	if !p.Empty() {
		s.invalidator.User(userID)
	}
	s.logger.Info("profile updated", zap.String("user_id", userID.String()))
	return user, nil
}
