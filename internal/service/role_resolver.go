package service

import (
	"context"
	"errors"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
)

// RoleResolver maps an authenticated identity to its profile. The profile's
// role is authoritative; the role claim in a token only gates routes.
type RoleResolver interface {
	Resolve(ctx context.Context, userID string) (*model.User, error)
}

type roleResolver struct {
	users repository.UserRepository
}

// NewRoleResolver returns a RoleResolver backed by the profile store.
func NewRoleResolver(users repository.UserRepository) RoleResolver {
	return &roleResolver{users: users}
}

func (r *roleResolver) Resolve(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperrors.AuthFailed("missing identity")
	}
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.AuthFailed("no profile exists for this account")
		}
		return nil, apperrors.DependencyFailure(err)
	}
	if !user.Role.Valid() {
		return nil, apperrors.Forbidden("account has no portal role")
	}
	return user, nil
}
