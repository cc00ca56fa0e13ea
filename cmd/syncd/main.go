package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"showsync/internal/api"
	"showsync/internal/config"
	"showsync/internal/database"
	"showsync/internal/domain"
	"showsync/internal/events"
	"showsync/internal/export"
	"showsync/internal/images"
	"showsync/internal/jobqueue"
	"showsync/internal/logging"
	"showsync/internal/metrics"
	"showsync/internal/ratelimit"
	"showsync/internal/repository"
	"showsync/internal/scheduler"
	"showsync/internal/tmdb"
	"showsync/internal/trakt"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, syncPoints := initSyncPoints(ctx, cfg, db, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()
	subscribeEvents(eventBus, &logger)

	remote := trakt.NewClient(cfg.Trakt, &logger)
	tmdbLimiter := ratelimit.New(cfg.Tmdb.RateLimit, rateWindow(cfg))
	metadata := tmdb.NewClient(cfg.Tmdb, tmdbLimiter, &logger)
	resolver := images.NewResolver(db, metadata, cfg.Sync.ImageRefreshMaxAge, &logger)

	manager := jobqueue.NewManager(db, redisClient, jobqueue.PolicyFromConfig(cfg.Sync),
		cfg.Sync.Concurrency, cfg.Sync.PollInterval, eventBus, &logger)
	handlers := jobqueue.NewHandlerSet(db, remote, resolver, eventBus, &logger)
	handlers.RegisterAll(manager)
	go manager.Start(ctx)

	poller := jobqueue.NewActivityPoller(remote, syncPoints, manager, eventBus, cfg.Sync.ActivityInterval, &logger)
	go poller.Run(ctx)

	episodes := scheduler.NewEpisodeScheduler(db, manager, eventBus, &logger)
	seasons := scheduler.NewSeasonScheduler(db, manager, eventBus, &logger)
	shows := scheduler.NewShowScheduler(db, manager, eventBus, &logger)
	movies := scheduler.NewMovieScheduler(db, manager, eventBus, &logger)
	comments := scheduler.NewCommentScheduler(db, manager, eventBus, &logger)
	lists := scheduler.NewListScheduler(db, manager, eventBus, &logger)
	for _, s := range []interface{ Run(context.Context) }{episodes, seasons, shows, movies, comments, lists} {
		go s.Run(ctx)
	}

	exporter := export.NewExporter(db, cfg.Exports.Path, &logger)

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, db, manager, exporter, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() { _ = apiServer.Shutdown(context.Background()) }()
	}

	logger.Info().Msg("syncd started")
	<-ctx.Done()
	logger.Info().Msg("syncd shutting down")
	return nil
}

func rateWindow(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Tmdb.RateWindowSeconds) * time.Second
}

// initSyncPoints builds the checkpoint store: Redis primary with the SQLite
// row as durable fallback, or SQLite alone when Redis is disabled.
func initSyncPoints(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) (*redis.Client, domain.SyncPointRepository) {
	if !cfg.Redis.Enabled {
		return nil, db
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using sqlite checkpoints only")
		_ = repository.Close(client)
		return nil, db
	}

	primary := repository.NewRedisSyncPointRepository(client, 0)
	return client, repository.NewFailoverSyncPointRepository(primary, db, logger)
}

func subscribeEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventJobFailed, func(event *events.Event) error {
		logger.Warn().RawJSON("payload", event.Payload).Msg("job failed")
		return nil
	})
	bus.Subscribe(events.EventCheckinConflict, func(event *events.Event) error {
		logger.Warn().RawJSON("payload", event.Payload).Msg("checkin conflict")
		return nil
	})
}
