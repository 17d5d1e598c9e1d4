package repository

import (
	"context"

	"gorm.io/gorm"

	"exeat/internal/model"
)

type sequenceRepository struct {
	db *gorm.DB
}

// NewSequenceRepository returns counters backed by the sequences table.
func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

// NextSequence is a single upsert, so concurrent callers never see the same value.
// Inside a transaction the row stays locked until commit.
func (r *sequenceRepository) NextSequence(ctx context.Context, key string) (int64, error) {
	var seq model.Sequence
	err := GetDB(ctx, r.db).Raw(`
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING name, value
	`, key).Scan(&seq).Error
	if err != nil {
		return 0, translateError("next sequence "+key, err)
	}
	return seq.Value, nil
}
