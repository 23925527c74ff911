package auth

import (
	"github.com/capiorg/backend-auth/internal/apperr"
	"github.com/capiorg/backend-auth/internal/model"
)

// Policy maps a caller role to the target roles whose profiles it may view
type Policy map[model.RoleID]map[model.RoleID]bool

// DefaultProfilePolicy: USER sees USER, MODERATOR sees USER and MODERATOR,
// ADMIN sees USER and MODERATOR. adminSeesAdmin adds ADMIN to ADMIN.
func DefaultProfilePolicy(adminSeesAdmin bool) Policy {
	p := Policy{
		model.RoleUser:      {model.RoleUser: true},
		model.RoleModerator: {model.RoleUser: true, model.RoleModerator: true},
		model.RoleAdmin:     {model.RoleUser: true, model.RoleModerator: true},
	}
	if adminSeesAdmin {
		p[model.RoleAdmin][model.RoleAdmin] = true
	}
	return p
}

// IsAllowed reports whether caller may view a profile with role target
func (p Policy) IsAllowed(caller, target model.RoleID) bool {
	return p[caller][target]
}

// Allow returns apperr.ErrForbidden when IsAllowed is false
func (p Policy) Allow(caller, target model.RoleID) error {
	if !p.IsAllowed(caller, target) {
		return apperr.ErrForbidden
	}
	return nil
}

// Viewable lists the target roles caller may view
func (p Policy) Viewable(caller model.RoleID) []model.RoleID {
	var roles []model.RoleID
	for _, r := range model.AllRoles() {
		if p[caller][r] {
			roles = append(roles, r)
		}
	}
	return roles
}
