// Package memory is an in-process implementation of the repository
// contracts, used by tests and by the "memory" database driver.
package memory

import (
	"context"
	"fmt"
	"sync"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
)

var (
	_ repository.ExeatRepository    = (*Store)(nil)
	_ repository.SequenceRepository = (*Store)(nil)
)

// Store holds requests and counters behind one mutex. Records are cloned on
// the way in and on the way out.
type Store struct {
	mu        sync.Mutex
	exeats    map[string]*model.ExeatRequest
	sequences map[string]int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		exeats:    make(map[string]*model.ExeatRequest),
		sequences: make(map[string]int64),
	}
}

func (s *Store) Create(_ context.Context, req *model.ExeatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exeats[req.ID]; ok {
		return fmt.Errorf("create exeat %s: %w", req.ID, apperrors.ErrAlreadyExists)
	}
	if req.Version == 0 {
		req.Version = 1
	}
	stored := req.Clone()
	for i := range stored.ApprovalTrail {
		stored.ApprovalTrail[i].RequestID = stored.ID
		stored.ApprovalTrail[i].Seq = i
	}
	s.exeats[req.ID] = stored
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*model.ExeatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.exeats[id]
	if !ok {
		return nil, fmt.Errorf("find exeat %s: %w", id, apperrors.ErrNotFound)
	}
	return req.Clone(), nil
}

// Update holds the lock across mutate, so updates to the same store are serialised.
func (s *Store) Update(_ context.Context, id string, mutate func(*model.ExeatRequest) error) (*model.ExeatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.exeats[id]
	if !ok {
		return nil, fmt.Errorf("update exeat %s: %w", id, apperrors.ErrNotFound)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1
	s.exeats[id] = next
	return next.Clone(), nil
}

func (s *Store) ListByStudent(_ context.Context, studentID string) ([]*model.ExeatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*model.ExeatRequest, 0)
	for _, req := range s.exeats {
		if req.StudentID == studentID {
			list = append(list, req.Clone())
		}
	}
	repository.SortForStudent(list)
	return list, nil
}

func (s *Store) ListForStaff(_ context.Context, stage model.Stage, actorID string) ([]*model.ExeatRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*model.ExeatRequest, 0)
	for _, req := range s.exeats {
		if repository.InStaffQueue(req, stage, actorID) {
			list = append(list, req.Clone())
		}
	}
	repository.SortForStaff(list, stage)
	return list, nil
}

func (s *Store) NextSequence(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[key]++
	return s.sequences[key], nil
}
