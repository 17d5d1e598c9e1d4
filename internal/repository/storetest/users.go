package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
)

// NewStudent builds a student profile.
func NewStudent(email, matric string) *model.User {
	return &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     "Ada Obi",
		MatricNumber: &matric,
		Password:     "hash",
		Role:         model.RoleStudent,
	}
}

// RunUserRepository runs the Profile Store contract.
func RunUserRepository(t *testing.T, factory func(t *testing.T) repository.UserRepository) {
	t.Run("CreateAndLookup", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		u := NewStudent("ada@mtu.edu.ng", "MTU/22/0001")
		require.NoError(t, repo.Create(ctx, u))

		byID, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, byID.Email)
		assert.Equal(t, model.RoleStudent, byID.Role)

		byEmail, err := repo.GetByEmail(ctx, "ada@mtu.edu.ng")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		byMatric, err := repo.GetByMatric(ctx, "MTU/22/0001")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byMatric.ID)

		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("UniqueEmailAndMatric", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		require.NoError(t, repo.Create(ctx, NewStudent("ada@mtu.edu.ng", "MTU/22/0001")))

		err := repo.Create(ctx, NewStudent("ada@mtu.edu.ng", "MTU/22/0002"))
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

		err = repo.Create(ctx, NewStudent("obi@mtu.edu.ng", "MTU/22/0001"))
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("StaffWithoutMatric", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		for _, email := range []string{"porter@mtu.edu.ng", "hod@mtu.edu.ng"} {
			require.NoError(t, repo.Create(ctx, &model.User{
				ID: uuid.NewString(), Email: email, FullName: "Staff Member", Password: "hash", Role: model.RolePorter,
			}))
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		u := NewStudent("ada@mtu.edu.ng", "MTU/22/0001")
		require.NoError(t, repo.Create(ctx, u))

		u.FullName = "Ada Obi-Okafor"
		require.NoError(t, repo.Update(ctx, u))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Obi-Okafor", got.FullName)
	})

	t.Run("RefreshTokens", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		u := NewStudent("ada@mtu.edu.ng", "MTU/22/0001")
		require.NoError(t, repo.Create(ctx, u))

		now := time.Now().UTC().Truncate(time.Millisecond)
		live := &model.RefreshToken{ID: uuid.NewString(), UserID: u.ID, Token: "live", ExpiresAt: now.Add(time.Hour)}
		stale := &model.RefreshToken{ID: uuid.NewString(), UserID: u.ID, Token: "stale", ExpiresAt: now.Add(-time.Hour)}
		require.NoError(t, repo.SaveRefreshToken(ctx, live))
		require.NoError(t, repo.SaveRefreshToken(ctx, stale))

		got, err := repo.GetRefreshToken(ctx, "live")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.UserID)

		// A TTL index may already have removed the stale token.
		n, err := repo.DeleteExpiredRefreshTokens(ctx, now)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, int64(1))
		_, err = repo.GetRefreshToken(ctx, "stale")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		require.NoError(t, repo.DeleteRefreshToken(ctx, "live"))
		_, err = repo.GetRefreshToken(ctx, "live")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		assert.ErrorIs(t, repo.DeleteRefreshToken(ctx, "live"), apperrors.ErrNotFound)
	})

	t.Run("ConcurrentTokenDelete", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		u := NewStudent("ada@mtu.edu.ng", "MTU/22/0001")
		require.NoError(t, repo.Create(ctx, u))
		require.NoError(t, repo.SaveRefreshToken(ctx, &model.RefreshToken{
			ID: uuid.NewString(), UserID: u.ID, Token: "shared", ExpiresAt: time.Now().Add(time.Hour),
		}))

		const callers = 8
		var wg sync.WaitGroup
		var removed atomic.Int32
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.DeleteRefreshToken(ctx, "shared")
				if err == nil {
					removed.Add(1)
					return
				}
				assert.ErrorIs(t, err, apperrors.ErrNotFound)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), removed.Load())
	})
}
