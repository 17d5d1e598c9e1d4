package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/pkg/logger"
	"exeat/internal/repository"
)

const (
	minPasswordLength = 6
	minFullNameLength = 3
)

// DTOs for Request validation
type SignupRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required"`
	FullName     string `json:"full_name" binding:"required"`
	MatricNumber string `json:"matric_number" binding:"required"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ProvisionStaffRequest describes a porter, hod or dsa account created by the seeder.
type ProvisionStaffRequest struct {
	Email    string
	FullName string
	Role     model.Role
	Password string
}

type TokenResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	MatricNumber string     `json:"matric_number,omitempty"`
	Role         model.Role `json:"role"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(user *model.User) (string, time.Time, error)
}

// UserService defines the interface for business logic related to User
type UserService interface {
	Signup(ctx context.Context, req SignupRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetMe(ctx context.Context, id string) (*UserResponse, error)
	UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*UserResponse, error)
	ChangePassword(ctx context.Context, id string, req ChangePasswordRequest) error
	ProvisionStaff(ctx context.Context, req ProvisionStaffRequest) (*UserResponse, error)
}

// UserServiceConfig holds the account rules.
type UserServiceConfig struct {
	InstitutionCode string
	EmailDomain     string
	RefreshTTL      time.Duration
}

type userService struct {
	repo        repository.UserRepository
	tokens      TokenIssuer
	cfg         UserServiceConfig
	matricRegex *regexp.Regexp
	now         func() time.Time
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, tokens TokenIssuer, cfg UserServiceConfig) UserService {
	return &userService{
		repo:        repo,
		tokens:      tokens,
		cfg:         cfg,
		matricRegex: regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(cfg.InstitutionCode) + `/[0-9]{2}/[0-9]{4}$`),
		now:         time.Now,
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		MatricNumber: user.Matric(),
		Role:         user.Role,
		CreatedAt:    user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) Signup(ctx context.Context, req SignupRequest) (*UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	matric := strings.ToUpper(strings.TrimSpace(req.MatricNumber))

	var fields []apperrors.FieldError
	if s.cfg.EmailDomain != "" && !strings.HasSuffix(email, "@"+strings.ToLower(s.cfg.EmailDomain)) {
		fields = append(fields, apperrors.FieldError{Field: "email", Code: apperrors.CodeFieldInvalid, Message: "email must be an @" + s.cfg.EmailDomain + " address"})
	}
	fields = append(fields, checkPassword("password", req.Password)...)
	fields = append(fields, checkFullName(fullName)...)
	if !s.matricRegex.MatchString(matric) {
		fields = append(fields, apperrors.FieldError{Field: "matric_number", Code: apperrors.CodeFieldInvalid, Message: "matric number must look like " + s.cfg.InstitutionCode + "/YY/NNNN"})
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation(fields...)
	}

	// Double check email/matric uniqueness via repo directly; the unique
	// indexes still decide races.
	if err := s.ensureFree(ctx, s.repo.GetByEmail, email, "email is already registered"); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, s.repo.GetByMatric, matric, "matric number is already registered"); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		MatricNumber: &matric,
		Password:     string(hashedPassword),
		Role:         model.RoleStudent,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, apperrors.AlreadyExists("email or matric number is already registered")
		}
		return nil, apperrors.DependencyFailure(err)
	}

	logger.Info("student signed up", zap.String("user_id", user.ID), zap.String("matric_number", matric))
	return mapToResponse(user), nil
}

func (s *userService) ensureFree(ctx context.Context, lookup func(context.Context, string) (*model.User, error), key, message string) error {
	_, err := lookup(ctx, key)
	switch {
	case err == nil:
		return apperrors.AlreadyExists(message)
	case errors.Is(err, apperrors.ErrNotFound):
		return nil
	default:
		return apperrors.DependencyFailure(err)
	}
}

func (s *userService) ProvisionStaff(ctx context.Context, req ProvisionStaffRequest) (*UserResponse, error) {
	if !req.Role.IsStaff() {
		return nil, apperrors.Validation(apperrors.FieldError{Field: "role", Code: apperrors.CodeFieldInvalid, Message: "role must be porter, hod or dsa"})
	}
	fullName := strings.TrimSpace(req.FullName)
	fields := append(checkPassword("password", req.Password), checkFullName(fullName)...)
	if len(fields) > 0 {
		return nil, apperrors.Validation(fields...)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ID:       uuid.NewString(),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		FullName: fullName,
		Password: string(hashedPassword),
		Role:     req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, apperrors.AlreadyExists("email is already registered")
		}
		return nil, apperrors.DependencyFailure(err)
	}
	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.AuthFailed("invalid email or password")
		}
		return nil, apperrors.DependencyFailure(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperrors.AuthFailed("invalid email or password")
	}

	return s.issueTokens(ctx, user)
}

func (s *userService) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	stored, err := s.repo.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.AuthFailed("invalid refresh token")
		}
		return nil, apperrors.DependencyFailure(err)
	}

	// Rotation: a refresh token is single-use. Only the caller whose delete
	// removed it may continue.
	if err := s.repo.DeleteRefreshToken(ctx, stored.Token); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.AuthFailed("invalid refresh token")
		}
		return nil, apperrors.DependencyFailure(err)
	}
	if !stored.ExpiresAt.After(s.now()) {
		return nil, apperrors.AuthFailed("refresh token expired")
	}

	user, err := s.repo.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.AuthFailed("account no longer exists")
		}
		return nil, apperrors.DependencyFailure(err)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	access, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     uuid.NewString() + uuid.NewString(),
		ExpiresAt: s.now().UTC().Add(s.cfg.RefreshTTL).Truncate(time.Millisecond),
	}
	if err := s.repo.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, apperrors.DependencyFailure(err)
	}

	return &TokenResponse{Token: access, RefreshToken: refresh.Token, ExpiresAt: expiresAt}, nil
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.repo.DeleteRefreshToken(ctx, refreshToken)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.DependencyFailure(err)
	}
	return nil
}

func (s *userService) GetMe(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

// UpdateProfile changes the display name. Requests already submitted keep the
// name they were filed under.
func (s *userService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*UserResponse, error) {
	fullName := strings.TrimSpace(req.FullName)
	if fields := checkFullName(fullName); len(fields) > 0 {
		return nil, apperrors.Validation(fields...)
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	user.FullName = fullName
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, apperrors.DependencyFailure(err)
	}
	return mapToResponse(user), nil
}

func (s *userService) ChangePassword(ctx context.Context, id string, req ChangePasswordRequest) error {
	fields := checkPassword("new_password", req.NewPassword)
	if req.NewPassword != req.ConfirmPassword {
		fields = append(fields, apperrors.FieldError{Field: "confirm_password", Code: apperrors.CodeFieldInvalid, Message: "passwords do not match"})
	}
	if len(fields) > 0 {
		return apperrors.Validation(fields...)
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return apperrors.AuthFailed("current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.Password = string(hashedPassword)
	if err := s.repo.Update(ctx, user); err != nil {
		return apperrors.DependencyFailure(err)
	}

	logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

func (s *userService) load(ctx context.Context, id string) (*model.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.UserNotFound()
		}
		return nil, apperrors.DependencyFailure(err)
	}
	return user, nil
}

func checkPassword(field, password string) []apperrors.FieldError {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return []apperrors.FieldError{{Field: field, Code: apperrors.CodeFieldTooShort, Message: "password must be at least 6 characters"}}
	}
	return nil
}

func checkFullName(name string) []apperrors.FieldError {
	if utf8.RuneCountInString(name) < minFullNameLength {
		return []apperrors.FieldError{{Field: "full_name", Code: apperrors.CodeFieldTooShort, Message: "full name must be at least 3 characters"}}
	}
	return nil
}
