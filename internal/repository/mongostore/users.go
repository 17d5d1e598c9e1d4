package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
)

var _ repository.UserRepository = (*Users)(nil)

// Users is the MongoDB Profile Store.
type Users struct {
	users  *mongo.Collection
	tokens *mongo.Collection
}

// NewUsers returns a Users store over db.
func NewUsers(db *mongo.Database) *Users {
	return &Users{
		users:  db.Collection(UsersCollection),
		tokens: db.Collection(RefreshTokensCollection),
	}
}

// EnsureIndexes creates the unique and TTL indexes.
func (s *Users) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("uniq_email").SetUnique(true)},
		{Keys: bson.D{{Key: "matric_number", Value: 1}}, Options: options.Index().SetName("uniq_matric").SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return translateError("ensure user indexes", err)
	}
	_, err = s.tokens.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetName("uniq_token").SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetName("ttl_expires").SetExpireAfterSeconds(0)},
	})
	return translateError("ensure refresh token indexes", err)
}

func (s *Users) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	_, err := s.users.InsertOne(ctx, user)
	return translateError("create user", err)
}

func (s *Users) findOne(ctx context.Context, op string, filter bson.M) (*model.User, error) {
	var user model.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, translateError(op, err)
	}
	return &user, nil
}

func (s *Users) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, "get user", bson.M{"_id": id})
}

func (s *Users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, "get user by email", bson.M{"email": email})
}

func (s *Users) GetByMatric(ctx context.Context, matric string) (*model.User, error) {
	return s.findOne(ctx, "get user by matric", bson.M{"matric_number": matric})
}

func (s *Users) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		return translateError("update user", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundf("update user %s", user.ID)
	}
	return nil
}

func (s *Users) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	_, err := s.tokens.InsertOne(ctx, token)
	return translateError("save refresh token", err)
}

func (s *Users) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	if err := s.tokens.FindOne(ctx, bson.M{"token": token}).Decode(&rt); err != nil {
		return nil, translateError("get refresh token", err)
	}
	return &rt, nil
}

func (s *Users) DeleteRefreshToken(ctx context.Context, token string) error {
	res, err := s.tokens.DeleteOne(ctx, bson.M{"token": token})
	if err != nil {
		return translateError("delete refresh token", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete refresh token: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (s *Users) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.tokens.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, translateError("delete expired refresh tokens", err)
	}
	return res.DeletedCount, nil
}
