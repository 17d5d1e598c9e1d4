package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
)

// UserRepository is the Profile Store together with refresh-token storage.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByMatric(ctx context.Context, matric string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error

	SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return translateError("create user", GetDB(ctx, r.db).Create(user).Error)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateError("get user", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		return nil, translateError("get user by email", err)
	}
	return &user, nil
}

func (r *userRepository) GetByMatric(ctx context.Context, matric string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "matric_number = ?", matric).Error; err != nil {
		return nil, translateError("get user by matric", err)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return translateError("update user", GetDB(ctx, r.db).Save(user).Error)
}

func (r *userRepository) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	return translateError("save refresh token", GetDB(ctx, r.db).Create(token).Error)
}

func (r *userRepository) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	if err := GetDB(ctx, r.db).First(&rt, "token = ?", token).Error; err != nil {
		return nil, translateError("get refresh token", err)
	}
	return &rt, nil
}

// DeleteRefreshToken removes token. ErrNotFound means another caller removed
// it first.
func (r *userRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	res := GetDB(ctx, r.db).Where("token = ?", token).Delete(&model.RefreshToken{})
	if res.Error != nil {
		return translateError("delete refresh token", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete refresh token: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (r *userRepository) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Where("expires_at < ?", before).Delete(&model.RefreshToken{})
	return res.RowsAffected, translateError("delete expired refresh tokens", res.Error)
}
