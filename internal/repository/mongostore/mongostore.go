// Package mongostore implements the repository contracts on MongoDB.
//
// A request and its trail are one document, so every write is atomic without
// a multi-document transaction. Concurrent writers are detected with a
// version field compared on replace.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
)

// Collection names.
const (
	ExeatsCollection        = "exeats"
	SequencesCollection     = "sequences"
	UsersCollection         = "users"
	RefreshTokensCollection = "refresh_tokens"
)

var (
	_ repository.ExeatRepository    = (*Store)(nil)
	_ repository.SequenceRepository = (*Store)(nil)
)

// Store is the MongoDB Request Store.
type Store struct {
	exeats    *mongo.Collection
	sequences *mongo.Collection
}

// New returns a Store over db.
func New(db *mongo.Database) *Store {
	return &Store{
		exeats:    db.Collection(ExeatsCollection),
		sequences: db.Collection(SequencesCollection),
	}
}

// EnsureIndexes creates the indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.exeats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("student_created")},
		{Keys: bson.D{{Key: "current_stage", Value: 1}, {Key: "updated_at", Value: -1}}, Options: options.Index().SetName("stage_updated")},
		{Keys: bson.D{{Key: "actor_ids_in_trail", Value: 1}}, Options: options.Index().SetName("actor_ids")},
	})
	return translateError("ensure exeat indexes", err)
}

func translateError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrAlreadyExists, err)
	default:
		return apperrors.Dependency(op, err)
	}
}

func (s *Store) Create(ctx context.Context, req *model.ExeatRequest) error {
	if req.Version == 0 {
		req.Version = 1
	}
	for i := range req.ApprovalTrail {
		req.ApprovalTrail[i].RequestID = req.ID
		req.ApprovalTrail[i].Seq = i
	}
	_, err := s.exeats.InsertOne(ctx, req)
	return translateError("create exeat "+req.ID, err)
}

func (s *Store) FindByID(ctx context.Context, id string) (*model.ExeatRequest, error) {
	var req model.ExeatRequest
	if err := s.exeats.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		return nil, translateError("find exeat "+id, err)
	}
	fillTrailKeys(&req)
	return &req, nil
}

// Update replaces the document only if its version is unchanged since the read.
func (s *Store) Update(ctx context.Context, id string, mutate func(*model.ExeatRequest) error) (*model.ExeatRequest, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1

	res, err := s.exeats.ReplaceOne(ctx, bson.M{"_id": id, "version": current.Version}, next)
	if err != nil {
		return nil, translateError("update exeat "+id, err)
	}
	if res.MatchedCount == 0 {
		return nil, apperrors.Conflict("update exeat " + id)
	}
	return next, nil
}

func (s *Store) ListByStudent(ctx context.Context, studentID string) ([]*model.ExeatRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.exeats.Find(ctx, bson.M{"student_id": studentID}, opts)
	if err != nil {
		return nil, translateError("list exeats by student", err)
	}
	return decodeAll(ctx, cur)
}

func (s *Store) ListForStaff(ctx context.Context, stage model.Stage, actorID string) ([]*model.ExeatRequest, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": []bson.M{
			{"current_stage": stage},
			{"actor_ids_in_trail": actorID},
		}}}},
		{{Key: "$addFields", Value: bson.M{"awaiting": bson.M{
			"$cond": bson.A{bson.M{"$eq": bson.A{"$current_stage", stage}}, 1, 0},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "awaiting", Value: -1}, {Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$project", Value: bson.M{"awaiting": 0}}},
	}
	cur, err := s.exeats.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translateError("list exeats for staff", err)
	}
	return decodeAll(ctx, cur)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]*model.ExeatRequest, error) {
	list := make([]*model.ExeatRequest, 0)
	if err := cur.All(ctx, &list); err != nil {
		return nil, translateError("decode exeats", err)
	}
	for _, req := range list {
		fillTrailKeys(req)
	}
	return list, nil
}

// fillTrailKeys restores the fields that are implied by nesting.
func fillTrailKeys(req *model.ExeatRequest) {
	for i := range req.ApprovalTrail {
		req.ApprovalTrail[i].RequestID = req.ID
	}
}

// NextSequence increments the counter document, creating it on first use.
// Two first-use upserts can race on the unique _id; the loser retries once and
// then finds the document.
func (s *Store) NextSequence(ctx context.Context, key string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"value": 1}}

	var seq model.Sequence
	err := s.sequences.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&seq)
	if mongo.IsDuplicateKeyError(err) {
		err = s.sequences.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&seq)
	}
	if err != nil {
		return 0, translateError("next sequence "+key, err)
	}
	return seq.Value, nil
}
