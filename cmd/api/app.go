package main

import (
	"context"
	"fmt"

	"treeadopt/internal/assignment"
	"treeadopt/internal/blob"
	"treeadopt/internal/cache"
	"treeadopt/internal/config"
	"treeadopt/internal/database"
	"treeadopt/internal/metrics"
	"treeadopt/internal/repository"
	"treeadopt/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client
	metrics *metrics.Metrics
	store   blob.Store
	local   bool

	trees      service.TreeService
	orders     service.OrderService
	tasks      service.TaskService
	growth     service.GrowthService
	stats      service.StatsService
	escalation service.EscalationService
}

// newApp connects to the database and the optional cache and image store,
// then builds the services.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	a := &app{cfg: cfg, logger: logger, pool: pool, metrics: metrics.New()}

	// Stats cache with in-process fallback
	var statsCache cache.StatsCache = cache.Noop{}
	if cfg.Redis.Enabled {
		rdb, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to connect to redis, stats will not be cached")
		} else {
			a.rdb = rdb
			statsCache = cache.NewRedisStatsCache(rdb, cfg.Redis.StatsTTL, logger)
		}
	} else {
		logger.Info().Msg("stats cache disabled")
	}

	// Image store with S3 and local fallback
	if cfg.S3.Enabled {
		s3Store, err := blob.NewS3Store(ctx, cfg.S3, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 store, falling back to local file system")
		} else {
			a.store = s3Store
		}
	} else {
		logger.Info().Msg("using local file system for images (S3 disabled)")
	}
	if a.store == nil {
		a.store, err = blob.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize image store: %w", err)
		}
		a.local = true
	}

	// Initialize repositories
	treeRepo := repository.NewTreeRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	taskRepo := repository.NewTaskRepository(pool, logger)
	wellwisherRepo := repository.NewWellwisherRepository(pool, logger)

	balancer := assignment.NewBalancer(wellwisherRepo, logger)

	// Initialize services
	a.trees = service.NewTreeService(treeRepo, logger)
	a.orders = service.NewOrderService(orderRepo, taskRepo, treeRepo, balancer, statsCache, a.metrics, logger)
	a.tasks = service.NewTaskService(taskRepo, orderRepo, a.store, statsCache, a.metrics, logger)
	a.growth = service.NewGrowthService(taskRepo, a.store, statsCache, a.metrics, logger)
	a.stats = service.NewStatsService(taskRepo, statsCache, logger)
	a.escalation = service.NewEscalationService(taskRepo, statsCache, a.metrics, logger)

	return a, nil
}

func (a *app) close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	a.pool.Close()
}
