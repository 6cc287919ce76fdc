package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/cache"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/filestore"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memstore"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/worker"
)

const cacheKeyPrefix = "helpdesk:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, persistence.DefaultMigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pool)
	} else {
		dev := memstore.New()
		seedDevUsers(dev, auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes), logger)
		store = dev
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	files, err := newFileStore(ctx, cfg.MinIO, logger)
	if err != nil {
		logger.Fatal("failed to init file store", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))
	if cfg.AMQP.URL != "" {
		publisher, err := events.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal("failed to connect amqp", zap.Error(err))
		}
		defer publisher.Close() //nolint:errcheck
		worker.StartEventForwarder(dispatcher, publisher, logger)
	}

	rules := service.AttachmentRules{
		MaxBytes:         cfg.Attachment.MaxBytes,
		AllowedMimeTypes: cfg.Attachment.AllowedMimeTypes,
	}
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		Store:       store,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		Attachments: rules,
		Files:       files,
	})
	searchService := service.NewSearchService(service.SearchDependencies{
		Store:           store,
		Logger:          logger,
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
	})
	autocompleteDeps := service.AutocompleteDependencies{Store: store, Logger: logger}
	if redis.Enabled() {
		autocompleteDeps.Cache = cache.NewRedisCache(redis.Client, cacheKeyPrefix)
		autocompleteDeps.CacheTTL = cfg.Autocomplete.CacheTTL()
	}
	autocompleteService := service.NewAutocompleteService(autocompleteDeps)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, store)

	dependencies := map[string]handlers.Pinger{"store": store, "files": files}
	if redis.Enabled() {
		dependencies["redis"] = redis
	}

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Attachment.MaxBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, metrics),
		Tickets:        handlers.NewTicketsHandler(workflowService),
		Search:         handlers.NewSearchHandler(searchService, autocompleteService),
		Attachments:    handlers.NewAttachmentsHandler(files, workflowService, rules, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func newFileStore(ctx context.Context, cfg config.MinIOConfig, logger *zap.Logger) (filestore.Store, error) {
	if cfg.Endpoint == "" {
		logger.Warn("MINIO_ENDPOINT not provided; keeping attachments in memory")
		return filestore.NewMemoryStore(), nil
	}
	store, err := filestore.NewMinioStore(ctx, filestore.MinioConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("attachments stored in minio", zap.String("bucket", cfg.Bucket))
	return store, nil
}

// seedDevUsers gives the in-memory store one user per role and logs a token
// for each so the API can be exercised locally.
func seedDevUsers(store *memstore.Store, tokens *auth.TokenManager, logger *zap.Logger) {
	users := []domain.User{
		{ID: "admin-1", Role: domain.RoleAdmin, Name: "Demo Admin", Email: "admin@helpdesk.local"},
		{ID: "customer-1", Role: domain.RoleCustomer, Name: "Demo Customer", Email: "customer@helpdesk.local"},
	}
	store.PutUsers(users...)
	for _, u := range users {
		token, _, err := tokens.GenerateToken(domain.Principal{ID: u.ID, Role: u.Role, Name: u.Name})
		if err != nil {
			logger.Warn("dev token not issued", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		logger.Debug("dev user seeded", zap.String("user_id", u.ID), zap.String("role", string(u.Role)), zap.String("token", token))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
