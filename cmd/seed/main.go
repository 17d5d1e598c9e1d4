// Command seed provisions the porter, hod and dsa accounts listed under
// seed.staff. Accounts that already exist are left untouched.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"exeat/internal/config"
	"exeat/internal/database"
	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/pkg/logger"
	"exeat/internal/repository"
	"exeat/internal/repository/mongostore"
	"exeat/internal/service"
)

// noTokens satisfies service.TokenIssuer; seeding never logs anyone in.
type noTokens struct{}

func (noTokens) Issue(*model.User) (string, time.Time, error) {
	return "", time.Time{}, errors.New("token issuing is disabled while seeding")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var users repository.UserRepository
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		users = repository.NewUserRepository(db)
	case config.DriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			logger.Fatal("connect mongo", zap.Error(err))
		}
		defer func() { _ = database.DisconnectMongo(context.Background(), client) }()
		store := mongostore.NewUsers(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			logger.Fatal("mongo indexes", zap.Error(err))
		}
		users = store
	default:
		logger.Fatal("seeding needs a persistent store", zap.String("driver", cfg.Database.Driver))
	}

	svc := service.NewUserService(users, noTokens{}, service.UserServiceConfig{
		InstitutionCode: cfg.Exeat.InstitutionCode,
		RefreshTTL:      cfg.Auth.RefreshTTL,
	})

	created, skipped, failed := 0, 0, 0
	for _, acct := range cfg.Seed.Staff {
		_, err := svc.ProvisionStaff(ctx, service.ProvisionStaffRequest{
			Email:    acct.Email,
			FullName: acct.FullName,
			Role:     model.Role(acct.Role),
			Password: acct.Password,
		})
		switch {
		case err == nil:
			created++
			logger.Info("staff account created", zap.String("email", acct.Email), zap.String("role", acct.Role))
		case errors.Is(err, apperrors.ErrAlreadyExists):
			skipped++
			logger.Info("staff account exists", zap.String("email", acct.Email))
		default:
			failed++
			logger.Error("staff account failed", zap.String("email", acct.Email), zap.Error(err))
		}
	}

	logger.Info("seed finished", zap.Int("created", created), zap.Int("skipped", skipped), zap.Int("failed", failed))
	if failed > 0 {
		os.Exit(1)
	}
}
