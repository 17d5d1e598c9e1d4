package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
)

var _ repository.UserRepository = (*Users)(nil)

// Users is an in-process Profile Store.
type Users struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	tokens map[string]*model.RefreshToken
}

// NewUsers returns an empty Users store.
func NewUsers() *Users {
	return &Users{
		byID:   make(map[string]*model.User),
		tokens: make(map[string]*model.RefreshToken),
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.MatricNumber != nil {
		m := *u.MatricNumber
		c.MatricNumber = &m
	}
	return &c
}

func (s *Users) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; ok {
		return fmt.Errorf("create user %s: %w", user.ID, apperrors.ErrAlreadyExists)
	}
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("create user: email taken: %w", apperrors.ErrAlreadyExists)
		}
		if user.MatricNumber != nil && u.Matric() == *user.MatricNumber {
			return fmt.Errorf("create user: matric number taken: %w", apperrors.ErrAlreadyExists)
		}
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.byID[user.ID] = cloneUser(user)
	return nil
}

func (s *Users) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", apperrors.ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.Email == email })
}

func (s *Users) GetByMatric(_ context.Context, matric string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.Matric() == matric })
}

func (s *Users) find(match func(*model.User) bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.byID {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, fmt.Errorf("get user: %w", apperrors.ErrNotFound)
}

func (s *Users) Update(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; !ok {
		return fmt.Errorf("update user: %w", apperrors.ErrNotFound)
	}
	user.UpdatedAt = time.Now()
	s.byID[user.ID] = cloneUser(user)
	return nil
}

func (s *Users) SaveRefreshToken(_ context.Context, token *model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.Token]; ok {
		return fmt.Errorf("save refresh token: %w", apperrors.ErrAlreadyExists)
	}
	c := *token
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.tokens[token.Token] = &c
	return nil
}

func (s *Users) GetRefreshToken(_ context.Context, token string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tokens[token]
	if !ok {
		return nil, fmt.Errorf("get refresh token: %w", apperrors.ErrNotFound)
	}
	c := *rt
	return &c, nil
}

func (s *Users) DeleteRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token]; !ok {
		return fmt.Errorf("delete refresh token: %w", apperrors.ErrNotFound)
	}
	delete(s.tokens, token)
	return nil
}

func (s *Users) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, rt := range s.tokens {
		if rt.ExpiresAt.Before(before) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}
