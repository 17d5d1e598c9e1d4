package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
	"exeat/internal/repository/memory"
)

type stubIssuer struct{}

func (stubIssuer) Issue(user *model.User) (string, time.Time, error) {
	return "access-" + user.ID, time.Now().Add(time.Hour), nil
}

func newUserService(t *testing.T) (*userService, *memory.Users) {
	t.Helper()
	users := memory.NewUsers()
	svc := NewUserService(users, stubIssuer{}, UserServiceConfig{
		InstitutionCode: "MTU",
		EmailDomain:     "mtu.edu.ng",
		RefreshTTL:      time.Hour,
	}).(*userService)
	return svc, users
}

func validSignup() SignupRequest {
	return SignupRequest{
		Email:        " Ada.Obi@MTU.edu.ng ",
		Password:     "secret1",
		FullName:     "Ada Obi",
		MatricNumber: "mtu/22/0001",
	}
}

func TestSignup_NormalisesAndStoresStudent(t *testing.T) {
	svc, users := newUserService(t)

	res, err := svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	assert.Equal(t, "ada.obi@mtu.edu.ng", res.Email)
	assert.Equal(t, "MTU/22/0001", res.MatricNumber)
	assert.Equal(t, model.RoleStudent, res.Role)

	stored, err := users.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.Password)
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SignupRequest)
		field  string
	}{
		{"foreign domain", func(r *SignupRequest) { r.Email = "ada@gmail.com" }, "email"},
		{"short password", func(r *SignupRequest) { r.Password = "12345" }, "password"},
		{"short name", func(r *SignupRequest) { r.FullName = " A " }, "full_name"},
		{"bad matric", func(r *SignupRequest) { r.MatricNumber = "MTU/2022/01" }, "matric_number"},
		{"other institution", func(r *SignupRequest) { r.MatricNumber = "UNI/22/0001" }, "matric_number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newUserService(t)
			req := validSignup()
			tt.mutate(&req)

			_, err := svc.Signup(context.Background(), req)
			appErr := requireCode(t, err, apperrors.CodeValidationFailed)
			require.Len(t, appErr.FieldErrors, 1)
			assert.Equal(t, tt.field, appErr.FieldErrors[0].Field)
		})
	}
}

func TestSignup_Duplicates(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	sameEmail := validSignup()
	sameEmail.MatricNumber = "MTU/22/0002"
	_, err = svc.Signup(ctx, sameEmail)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	sameMatric := validSignup()
	sameMatric.Email = "bola@mtu.edu.ng"
	_, err = svc.Signup(ctx, sameMatric)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestLoginRefreshLogout(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	user, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginUserRequest{Email: "ada.obi@mtu.edu.ng", Password: "wrong-one"})
	requireCode(t, err, apperrors.CodeAuthFailed)

	_, err = svc.Login(ctx, LoginUserRequest{Email: "nobody@mtu.edu.ng", Password: "secret1"})
	requireCode(t, err, apperrors.CodeAuthFailed)

	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "ADA.OBI@mtu.edu.ng", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "access-"+user.ID, tokens.Token)
	require.NotEmpty(t, tokens.RefreshToken)

	rotated, err := svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old token was consumed by the rotation.
	_, err = svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	requireCode(t, err, apperrors.CodeAuthFailed)

	require.NoError(t, svc.Logout(ctx, rotated.RefreshToken))
	_, err = svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: rotated.RefreshToken})
	requireCode(t, err, apperrors.CodeAuthFailed)

	require.NoError(t, svc.Logout(ctx, ""))
}

// lockstepUsers holds every refresh-token read until all readers have loaded
// the token, so their deletes race.
type lockstepUsers struct {
	repository.UserRepository
	readers sync.WaitGroup
}

func (u *lockstepUsers) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	rt, err := u.UserRepository.GetRefreshToken(ctx, token)
	u.readers.Done()
	u.readers.Wait()
	return rt, err
}

func TestRefreshToken_ConcurrentReuse(t *testing.T) {
	const callers = 5
	base, _ := newUserService(t)
	ctx := context.Background()
	_, err := base.Signup(ctx, validSignup())
	require.NoError(t, err)
	tokens, err := base.Login(ctx, LoginUserRequest{Email: "ada.obi@mtu.edu.ng", Password: "secret1"})
	require.NoError(t, err)

	users := &lockstepUsers{UserRepository: base.repo}
	users.readers.Add(callers)
	svc := NewUserService(users, stubIssuer{}, UserServiceConfig{
		InstitutionCode: "MTU",
		EmailDomain:     "mtu.edu.ng",
		RefreshTTL:      time.Hour,
	})

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
			if err == nil {
				succeeded.Add(1)
				return
			}
			appErr, ok := apperrors.IsAppError(err)
			if assert.True(t, ok) {
				assert.Equal(t, apperrors.CodeAuthFailed, appErr.Code)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), succeeded.Load(), "a refresh token must be redeemed once")
}

func TestRefreshToken_Expired(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "ada.obi@mtu.edu.ng", Password: "secret1"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.RefreshToken(ctx, RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	appErr := requireCode(t, err, apperrors.CodeAuthFailed)
	assert.Equal(t, "refresh token expired", appErr.Message)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	user, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, user.ID, UpdateProfileRequest{FullName: "Al"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	updated, err := svc.UpdateProfile(ctx, user.ID, UpdateProfileRequest{FullName: "  Ada Obi-Okafor "})
	require.NoError(t, err)
	assert.Equal(t, "Ada Obi-Okafor", updated.FullName)

	_, err = svc.UpdateProfile(ctx, "ghost", UpdateProfileRequest{FullName: "Somebody"})
	requireCode(t, err, apperrors.CodeUserNotFound)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	user, err := svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "abc", ConfirmPassword: "abc"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	err = svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "newsecret", ConfirmPassword: "newsecreT"})
	appErr := requireCode(t, err, apperrors.CodeValidationFailed)
	assert.Equal(t, "confirm_password", appErr.FieldErrors[0].Field)

	err = svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "nope!!", NewPassword: "newsecret", ConfirmPassword: "newsecret"})
	requireCode(t, err, apperrors.CodeAuthFailed)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "newsecret", ConfirmPassword: "newsecret"}))

	_, err = svc.Login(ctx, LoginUserRequest{Email: "ada.obi@mtu.edu.ng", Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = svc.Login(ctx, LoginUserRequest{Email: "ada.obi@mtu.edu.ng", Password: "newsecret"})
	require.NoError(t, err)
}

func TestProvisionStaff(t *testing.T) {
	svc, users := newUserService(t)
	ctx := context.Background()

	res, err := svc.ProvisionStaff(ctx, ProvisionStaffRequest{Email: "Porter@mtu.edu.ng", FullName: "Gate Porter", Role: model.RolePorter, Password: "porter123"})
	require.NoError(t, err)
	assert.Equal(t, model.RolePorter, res.Role)
	assert.Empty(t, res.MatricNumber)

	stored, err := users.GetByEmail(ctx, "porter@mtu.edu.ng")
	require.NoError(t, err)
	assert.Nil(t, stored.MatricNumber)

	_, err = svc.ProvisionStaff(ctx, ProvisionStaffRequest{Email: "x@mtu.edu.ng", FullName: "Someone", Role: model.RoleStudent, Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.ProvisionStaff(ctx, ProvisionStaffRequest{Email: "porter@mtu.edu.ng", FullName: "Gate Porter", Role: model.RolePorter, Password: "porter123"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestRoleResolver(t *testing.T) {
	users := memory.NewUsers()
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &model.User{ID: "u1", Email: "u1@mtu.edu.ng", FullName: "Gate Porter", Password: "x", Role: model.RolePorter}))
	require.NoError(t, users.Create(ctx, &model.User{ID: "u2", Email: "u2@mtu.edu.ng", FullName: "Odd One", Password: "x", Role: model.Role("admin")}))

	resolver := NewRoleResolver(users)

	u, err := resolver.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: "u1", Name: "Gate Porter", Role: model.RolePorter}, u.Actor())

	_, err = resolver.Resolve(ctx, "u2")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = resolver.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = resolver.Resolve(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
