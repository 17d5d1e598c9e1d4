package service

import (
	"context"
	"errors"
	"strings"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
)

// VerificationService serves the public permit check. It looks requests up
// by exact id only.
type VerificationService interface {
	Verify(ctx context.Context, exeatID string) (*model.ExeatRequest, error)
}

type verificationService struct {
	exeats repository.ExeatRepository
}

// NewVerificationService returns a new instance of VerificationService
func NewVerificationService(exeats repository.ExeatRepository) VerificationService {
	return &verificationService{exeats: exeats}
}

func (s *verificationService) Verify(ctx context.Context, exeatID string) (*model.ExeatRequest, error) {
	id := strings.ToUpper(strings.TrimSpace(exeatID))
	if _, _, _, ok := model.ParseExeatID(id); !ok {
		return nil, apperrors.ExeatNotFound(exeatID, nil)
	}

	r, err := s.exeats.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ExeatNotFound(id, err)
		}
		return nil, apperrors.DependencyFailure(err)
	}
	return r, nil
}
