package repository

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
)

type exeatRepository struct {
	db *gorm.DB
}

// NewExeatRepository returns the PostgreSQL Request Store.
func NewExeatRepository(db *gorm.DB) ExeatRepository {
	return &exeatRepository{db: db}
}

func orderedTrail(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}

func (r *exeatRepository) Create(ctx context.Context, req *model.ExeatRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	for i := range req.ApprovalTrail {
		req.ApprovalTrail[i].RequestID = req.ID
	}
	return translateError("create exeat", GetDB(ctx, r.db).Create(req).Error)
}

func (r *exeatRepository) FindByID(ctx context.Context, id string) (*model.ExeatRequest, error) {
	var req model.ExeatRequest
	err := GetDB(ctx, r.db).
		Preload("ApprovalTrail", orderedTrail).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, translateError("find exeat "+id, err)
	}
	return &req, nil
}

// Update locks the row for the length of the transaction. The version check
// in the UPDATE still guards against writers that bypass the lock.
func (r *exeatRepository) Update(ctx context.Context, id string, mutate func(*model.ExeatRequest) error) (*model.ExeatRequest, error) {
	var (
		out       *model.ExeatRequest
		mutateErr error
	)

	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var current model.ExeatRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "id = ?", id).Error; err != nil {
			return err
		}
		if err := orderedTrail(tx.Where("request_id = ?", id)).Find(&current.ApprovalTrail).Error; err != nil {
			return err
		}

		next := current.Clone()
		before := len(next.ApprovalTrail)
		if err := mutate(next); err != nil {
			mutateErr = err
			return err
		}

		res := tx.Model(&model.ExeatRequest{}).
			Where("id = ? AND version = ?", id, current.Version).
			Updates(map[string]interface{}{
				"status":             next.Status,
				"current_stage":      next.CurrentStage,
				"updated_at":         next.UpdatedAt,
				"actor_ids_in_trail": next.ActorIDs,
				"version":            current.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("update exeat " + id)
		}

		if added := next.ApprovalTrail[before:]; len(added) > 0 {
			if err := tx.Create(&added).Error; err != nil {
				return err
			}
		}

		next.Version = current.Version + 1
		out = next
		return nil
	})

	if mutateErr != nil {
		return nil, mutateErr
	}
	if err != nil {
		return nil, translateError("update exeat "+id, err)
	}
	return out, nil
}

func (r *exeatRepository) ListByStudent(ctx context.Context, studentID string) ([]*model.ExeatRequest, error) {
	var list []*model.ExeatRequest
	err := GetDB(ctx, r.db).
		Preload("ApprovalTrail", orderedTrail).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, translateError("list exeats by student", err)
	}
	return list, nil
}

func (r *exeatRepository) ListForStaff(ctx context.Context, stage model.Stage, actorID string) ([]*model.ExeatRequest, error) {
	actorFilter, err := json.Marshal([]string{actorID})
	if err != nil {
		return nil, err
	}

	var list []*model.ExeatRequest
	err = GetDB(ctx, r.db).
		Preload("ApprovalTrail", orderedTrail).
		Where("current_stage = ? OR actor_ids_in_trail @> ?::jsonb", stage, string(actorFilter)).
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "(current_stage = ?) DESC", Vars: []interface{}{stage}, WithoutParentheses: true}}).
		Order("updated_at DESC").
		Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, translateError("list exeats for staff", err)
	}
	return list, nil
}
