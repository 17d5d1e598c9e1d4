package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	_ "exeat/api/swagger" // swagger docs
	"exeat/internal/config"
	"exeat/internal/database"
	"exeat/internal/handler"
	"exeat/internal/middleware"
	"exeat/internal/pkg/logger"
	"exeat/internal/pkg/worker"
	"exeat/internal/repository"
	"exeat/internal/repository/memory"
	"exeat/internal/repository/mongostore"
	"exeat/internal/service"
	"exeat/internal/storage"
	"exeat/internal/websocket"
	"exeat/internal/workflow"
)

// stores is the storage wiring selected by database.driver.
type stores struct {
	exeats    repository.ExeatRepository
	sequences repository.SequenceRepository
	users     repository.UserRepository
	txManager repository.TransactionManager
	close     func(ctx context.Context)
}

// @title           Exeat Portal API
// @version         1.0
// @description     Campus leave (exeat) requests with porter, hod and dsa approval.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal("storage unavailable", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	logger.Info("storage ready", zap.String("driver", cfg.Database.Driver))

	pool, err := worker.NewPool(ctx, "events", cfg.Worker.PoolSize)
	if err != nil {
		logger.Fatal("worker pool", zap.Error(err))
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(pool, cfg.Server.AllowOrigins)
	go wsHub.Run(ctx)

	consents, err := storage.NewConsentStore(cfg.Storage.ConsentDir, cfg.Storage.MaxUploadBytes, cfg.Storage.AllowedContentTypes)
	if err != nil {
		logger.Fatal("consent store", zap.Error(err))
	}

	auth := middleware.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, cfg.Auth.SecureCookies)

	// Set up dependencies (Repository -> Service -> Handler)
	profiles := service.NewRoleResolver(st.users)
	engine := workflow.NewEngine(st.exeats,
		workflow.WithCommentMaxLength(cfg.Exeat.CommentMaxLength),
		workflow.WithMaxConflictRetries(cfg.Exeat.MaxConflictRetries),
	)
	userService := service.NewUserService(st.users, auth, service.UserServiceConfig{
		InstitutionCode: cfg.Exeat.InstitutionCode,
		EmailDomain:     cfg.Auth.EmailDomain,
		RefreshTTL:      cfg.Auth.RefreshTTL,
	})
	exeatService := service.NewExeatService(service.ExeatServiceDeps{
		Exeats:    st.exeats,
		Sequences: st.sequences,
		TxManager: st.txManager,
		Resolver:  profiles,
		Engine:    engine,
		Consents:  consents,
		Publisher: wsHub,
	}, service.IntakeRules{
		InstitutionCode:        cfg.Exeat.InstitutionCode,
		PurposeMinLength:       cfg.Exeat.PurposeMinLength,
		PurposeMaxLength:       cfg.Exeat.PurposeMaxLength,
		ContactMinLength:       cfg.Exeat.ContactMinLength,
		ContactMaxLength:       cfg.Exeat.ContactMaxLength,
		RequireConsentDocument: cfg.Exeat.RequireConsentDocument,
	})
	verificationService := service.NewVerificationService(st.exeats)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService, auth)
	exeatHandler := handler.NewExeatHandler(exeatService, consents, auth)
	verifyHandler := handler.NewVerifyHandler(verificationService)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(), middleware.ErrorHandler())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "driver": cfg.Database.Driver, "ws_clients": wsHub.ClientCount()})
	})

	// Runtime log level, e.g. curl -X PUT -d '{"level":"debug"}' /log/level
	router.Any("/log/level", gin.WrapH(logger.Level()))

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth, profiles)
	})

	// API Routing
	userHandler.RegisterRoutes(router.Group(""))
	exeatHandler.RegisterRoutes(router.Group(""))
	verifyHandler.RegisterRoutes(router.Group(""))

	go sweepRefreshTokens(ctx, st.users, time.Hour)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	pool.Shutdown(cfg.Server.ShutdownTimeout)
	st.close(shutdownCtx)
	logger.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, err
		}
		exeats := repository.NewExeatRepository(db)
		return &stores{
			exeats:    exeats,
			sequences: repository.NewSequenceRepository(db),
			users:     repository.NewUserRepository(db),
			txManager: repository.NewTransactionManager(db),
			close: func(context.Context) {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	case config.DriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		exeats := mongostore.New(db)
		users := mongostore.NewUsers(db)
		if err := ensureMongoIndexes(ctx, client, exeats, users); err != nil {
			return nil, err
		}
		return &stores{
			exeats:    exeats,
			sequences: exeats,
			users:     users,
			txManager: repository.NewDirectRunner(),
			close: func(ctx context.Context) {
				_ = database.DisconnectMongo(ctx, client)
			},
		}, nil

	default:
		logger.Warn("using the in-memory store; data is lost on restart")
		exeats := memory.New()
		return &stores{
			exeats:    exeats,
			sequences: exeats,
			users:     memory.NewUsers(),
			txManager: repository.NewDirectRunner(),
			close:     func(context.Context) {},
		}, nil
	}
}

func ensureMongoIndexes(ctx context.Context, client *mongo.Client, exeats *mongostore.Store, users *mongostore.Users) error {
	if err := exeats.EnsureIndexes(ctx); err != nil {
		_ = database.DisconnectMongo(context.Background(), client)
		return err
	}
	if err := users.EnsureIndexes(ctx); err != nil {
		_ = database.DisconnectMongo(context.Background(), client)
		return err
	}
	return nil
}

func sweepRefreshTokens(ctx context.Context, users repository.UserRepository, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := users.DeleteExpiredRefreshTokens(ctx, time.Now())
			if err != nil {
				logger.Warn("refresh token sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired refresh tokens removed", zap.Int64("count", n))
			}
		}
	}
}
