package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/resource-queue/internal/api/http"
	"github.com/spec-kit/resource-queue/internal/api/http/handlers"
	"github.com/spec-kit/resource-queue/internal/auth"
	"github.com/spec-kit/resource-queue/internal/cache"
	"github.com/spec-kit/resource-queue/internal/config"
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/events"
	"github.com/spec-kit/resource-queue/internal/observability"
	"github.com/spec-kit/resource-queue/internal/persistence"
	"github.com/spec-kit/resource-queue/internal/push"
	"github.com/spec-kit/resource-queue/internal/repository"
	"github.com/spec-kit/resource-queue/internal/service"
	"github.com/spec-kit/resource-queue/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}
	defer closeStore()

	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	shared, closeShared := openShared(ctx, cfg, logger)
	defer closeShared()

	pushCfg := push.Config{
		Subject:    cfg.Push.Subject,
		PublicKey:  cfg.Push.VAPIDPublicKey,
		PrivateKey: cfg.Push.VAPIDPrivateKey,
		TTLSeconds: cfg.Push.TTLSeconds,
	}
	var pusher push.Pusher = push.NoopPusher{}
	if pushCfg.Enabled() {
		pusher = push.NewWebPusher(pushCfg, &http.Client{Timeout: 10 * time.Second})
	} else {
		logger.Info("web push disabled: VAPID keys not set")
	}

	notifier := service.NewNotificationService(service.NotificationDependencies{
		Store:     store,
		Publisher: shared.publisher,
		Pusher:    pusher,
		Cache:     shared.cache,
		Logger:    logger,
		Metrics:   metrics,
	})
	queue := service.NewQueueService(service.QueueDependencies{
		Store:         store,
		Notifier:      notifier,
		Cache:         shared.cache,
		CacheTTL:      cfg.Cache.TTL(),
		Logger:        logger,
		Metrics:       metrics,
		TxMaxAttempts: cfg.Queue.TxMaxAttempts,
	})
	users := service.NewUserService(service.UserDependencies{
		Store:    store,
		Queue:    queue,
		Notifier: notifier,
		Tokens:   tokens,
		Sessions: shared.sessions,
	})

	if cfg.Auth.BootstrapAdminID != "" {
		if err := bootstrapAdmin(ctx, store, users, cfg.Auth.BootstrapAdminID, logger); err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
	}

	sweeper := worker.NewConfirmationSweeper(queue, cfg.Queue.AwaitingTimeout(), cfg.Queue.SweepInterval(), logger)
	if sweeper.Enabled() {
		go sweeper.Run(ctx)
	}

	app := httptransport.NewApp(cfg.App.Name)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, shared.health(store)),
		Resources:      handlers.NewResourcesHandler(queue),
		Users:          handlers.NewUsersHandler(users),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, shared.sessions, store.Repositories().Users),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(pg.Pool), pg.Close, nil
	case config.StoreDriverMongo:
		mg, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewMongoStore(mg.Client, mg.Database)
		if err := store.EnsureIndexes(ctx); err != nil {
			mg.Close(context.Background())
			return nil, nil, err
		}
		return store, func() { mg.Close(context.Background()) }, nil
	default:
		logger.Warn("using in-memory store; state is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}
}

// sharedState is where pub/sub, the response cache and sessions live.
type sharedState struct {
	publisher events.Publisher
	cache     cache.Cache
	sessions  auth.SessionStore
	redis     *persistence.Redis
}

func (s sharedState) health(store repository.Store) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"store": store}
	if s.redis != nil {
		deps["redis"] = s.redis
	}
	return deps
}

// openShared uses Redis, except with the memory store, where the whole
// service runs in-process.
func openShared(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sharedState, func()) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Info("using in-process pub/sub, cache and sessions")
		return sharedState{
			publisher: events.NewInMemoryDispatcher(),
			cache:     cache.NewMemory(),
			sessions:  auth.NewMemorySessionStore(),
		}, func() {}
	}
	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	return sharedState{
		publisher: events.NewRedisPublisher(redis.Client),
		cache:     cache.NewRedis(redis.Client, cfg.Cache.LockTTL()),
		sessions:  auth.NewRedisSessionStore(redis.Client),
		redis:     redis,
	}, redis.Close
}

func bootstrapAdmin(ctx context.Context, store repository.Store, users *service.UserService, id string, logger *zap.Logger) error {
	if _, err := store.Repositories().Users.GetByID(ctx, id); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if _, err := users.CreateUser(ctx, service.CreateUserInput{
		ID:         id,
		Username:   id,
		Email:      id + "@localhost.localdomain",
		GlobalRole: domain.GlobalRoleAdmin,
	}); err != nil {
		return err
	}
	token, _, err := users.IssueToken(ctx, id)
	if err != nil {
		return err
	}
	logger.Info("bootstrap admin created", zap.String("user_id", id), zap.String("token", token))
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
