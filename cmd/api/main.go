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
	"github.com/moodi-org/pass-backend/internal/config"
	"github.com/moodi-org/pass-backend/internal/handlers"
	"github.com/moodi-org/pass-backend/internal/logging"
	"github.com/moodi-org/pass-backend/internal/middleware"
	"github.com/moodi-org/pass-backend/internal/observability"
	"github.com/moodi-org/pass-backend/internal/repository"
	"github.com/moodi-org/pass-backend/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	_ "github.com/moodi-org/pass-backend/docs"
)

// @title           Access Pass API
// @version         1.0
// @description     Event access pass backend. Participants are verified against the registration service, upload a photo with an identity document and store their generated pass.

// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

// @tag.name accommodation
// @tag.description Participant verification, photos and passes

// @tag.name health
// @tag.description Health check operations

func main() {
	// Initialize logger first
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = logging.Logger.Sync() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}

	observability.InitTracer(cfg)
	defer observability.ShutdownTracer()

	ctx := context.Background()

	if err := repository.Migrate(cfg.DBDriver, cfg.MigrationURL()); err != nil {
		logging.Logger.Fatal("failed to run migrations", zap.Error(err))
	}

	db, err := config.OpenDatabase(ctx, cfg)
	if err != nil {
		logging.Logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient, err := config.InitRedis(ctx, cfg)
	if err != nil {
		logging.Logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	var counters services.CounterStore
	if redisClient != nil {
		counters = redisClient
		defer func() { _ = redisClient.Close() }()
	}

	mongoClient, auditCollection, err := config.InitMongoDB(ctx, cfg)
	if err != nil {
		logging.Logger.Fatal("failed to connect to audit store", zap.Error(err))
	}
	var auditor services.Auditor = services.NopAuditor{}
	if auditCollection != nil {
		worker := services.NewAuditWorker(services.NewMongoAuditWriter(auditCollection), cfg.AuditBufferSize, logging.Logger.Named("audit"))
		auditor = worker
		defer func() {
			worker.Stop()
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoClient.Disconnect(disconnectCtx)
		}()
	}

	photos, err := services.NewFileStore(cfg.UploadDir, "photo")
	if err != nil {
		logging.Logger.Fatal("failed to prepare upload directory", zap.Error(err))
	}
	passes, err := services.NewFileStore(cfg.PassDir, "pass")
	if err != nil {
		logging.Logger.Fatal("failed to prepare pass directory", zap.Error(err))
	}

	tokens := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	passService := services.NewPassService(services.PassServiceDeps{
		Repository:        repository.NewParticipantRepository(db),
		Verifier:          services.NewVerifierClient(cfg.VerifierURL, cfg.VerifierTimeout, logging.Logger.Named("verifier")),
		Tokens:            tokens,
		Photos:            photos,
		Passes:            passes,
		Renderer:          services.NewPassRenderer(cfg.PassMaxWidth, cfg.PassJPEGQuality),
		Limiter:           services.NewRateLimiter(counters, cfg.CheckRateLimit, cfg.CheckRateWindow, logging.Logger.Named("ratelimit")),
		Auditor:           auditor,
		Logger:            logging.Logger.Named("pass"),
		IDNumberMinLength: cfg.IDNumberMinLength,
		MaxPhotoBytes:     cfg.MaxPhotoBytes,
		MaxPassBytes:      cfg.MaxPassBytes,
	})

	checks := []handlers.HealthCheck{{Name: "database", Required: true, Check: passService.Ready}}
	if redisClient != nil {
		checks = append(checks, handlers.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	if mongoClient != nil {
		checks = append(checks, handlers.HealthCheck{Name: "mongodb", Check: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, readpref.Primary())
		}})
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestTiming(),
		middleware.RequestLogger(),
		middleware.RequestTracker(),
		middleware.NoIsolationHeaders(),
	)

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterRoutes(router, handlers.Routes{
		Pass:      handlers.NewPassHandlers(logging.Logger.Named("handlers"), passService, cfg.MaxPhotoBytes, cfg.MaxPassBytes),
		Health:    handlers.NewHealthHandlers(logging.Logger.Named("health"), checks...),
		Tokens:    tokens,
		UploadDir: cfg.UploadDir,
		PassDir:   cfg.PassDir,
		CORS: cors.New(cors.Config{
			AllowOrigins:     []string{cfg.FrontendOrigin},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logging.Logger.Info("starting server",
			zap.Int("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("db_driver", cfg.DBDriver),
			zap.String("frontend_origin", cfg.FrontendOrigin),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Error("server forced to shutdown", zap.Error(err))
	}

	logging.Logger.Info("server exited gracefully")
}
