package repository

import (
	"context"
	"sort"

	"exeat/internal/model"
)

// ExeatRepository is the Request Store. Every implementation must pass the
// storetest contract suite.
//
// Returned requests are private copies with the trail ordered oldest first.
// Errors wrap apperrors.ErrNotFound, ErrAlreadyExists, ErrConflict or
// ErrDependency.
type ExeatRepository interface {
	Create(ctx context.Context, req *model.ExeatRequest) error
	FindByID(ctx context.Context, id string) (*model.ExeatRequest, error)

	// Update loads the request, runs mutate on a copy and commits the copy
	// atomically with the entries it appended. If mutate fails nothing is
	// written and its error is returned unchanged. A commit that lost a race
	// returns an error wrapping ErrConflict.
	Update(ctx context.Context, id string, mutate func(r *model.ExeatRequest) error) (*model.ExeatRequest, error)

	// ListByStudent returns a student's requests, newest first.
	ListByStudent(ctx context.Context, studentID string) ([]*model.ExeatRequest, error)

	// ListForStaff returns requests waiting at stage together with requests
	// actorID has acted on. Waiting requests come first, then most recently
	// updated, then id.
	ListForStaff(ctx context.Context, stage model.Stage, actorID string) ([]*model.ExeatRequest, error)
}

// SequenceRepository hands out atomic counters.
type SequenceRepository interface {
	// NextSequence increments the counter named key and returns the new
	// value. The first call for a key returns 1.
	NextSequence(ctx context.Context, key string) (int64, error)
}

// SortForStaff orders a work queue in place.
func SortForStaff(list []*model.ExeatRequest, stage model.Stage) {
	sort.SliceStable(list, func(i, j int) bool {
		ai, aj := list[i].CurrentStage == stage, list[j].CurrentStage == stage
		if ai != aj {
			return ai
		}
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// SortForStudent orders a student's requests in place.
func SortForStudent(list []*model.ExeatRequest) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}

// InStaffQueue reports whether r belongs in the queue of actorID at stage.
func InStaffQueue(r *model.ExeatRequest, stage model.Stage, actorID string) bool {
	return r.CurrentStage == stage || r.HasActor(actorID)
}
