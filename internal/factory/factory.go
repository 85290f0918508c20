package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/arcaderooms/internal/api/sse"
	"github.com/mcoot/arcaderooms/internal/config"
	"github.com/mcoot/arcaderooms/internal/dependencies/clock"
	"github.com/mcoot/arcaderooms/internal/dependencies/random"
	"github.com/mcoot/arcaderooms/internal/notify"
	"github.com/mcoot/arcaderooms/internal/services/matches"
	"github.com/mcoot/arcaderooms/internal/services/relay"
	"github.com/mcoot/arcaderooms/internal/services/rooms"
	"github.com/mcoot/arcaderooms/internal/services/shipcache"
	"github.com/mcoot/arcaderooms/internal/storage"
	"github.com/mcoot/arcaderooms/internal/storage/memory"
	"github.com/mcoot/arcaderooms/internal/storage/postgres"
	redisstorage "github.com/mcoot/arcaderooms/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = config.StorageMemory
	StorageTypeRedis    = config.StorageRedis
	StorageTypePostgres = config.StoragePostgres
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock     clock.Clock
	Random    random.Random
	Publisher notify.Publisher

	// Services
	Ships       *shipcache.Cache
	Hub         *relay.Hub
	Coordinator *rooms.Coordinator
	Relay       *relay.Service
	Sweeper     *relay.Sweeper
	Recorder    *matches.Recorder
	Events      *sse.HubManager

	logger *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds pool settings (required if StorageType is "postgres")
	PostgresConfig *postgres.Config
	// Migrate applies the embedded schema migrations before opening the pool
	Migrate bool
	// MigrateForceDirty lets Migrate mark a half-applied migration clean
	MigrateForceDirty bool
	// NATSConfig enables lifecycle event publishing (optional)
	// If nil, events are dropped
	NATSConfig *notify.NATSConfig

	Rooms           rooms.Config
	Cache           shipcache.Config
	PlayerTimeout   time.Duration
	CleanupInterval time.Duration
	DedupWindow     time.Duration
}

// FromConfig maps loaded server settings onto a factory Config
func FromConfig(c *config.Config, logger *slog.Logger) Config {
	cfg := Config{
		Logger:            logger,
		StorageType:       c.Storage.Type,
		Migrate:           c.Storage.Postgres.Migrate,
		MigrateForceDirty: c.Storage.Postgres.ForceDirty,
		Rooms: rooms.Config{
			ReadBackRetries: c.Rooms.ReadBackRetries,
			ReadBackDelay:   c.Rooms.ReadBackDelay,
			StrictLifecycle: c.Rooms.StrictLifecycle,
		},
		Cache: shipcache.Config{
			Shards:  c.Relay.Shards,
			ShipTTL: c.Relay.ShipTTL,
		},
		PlayerTimeout:   c.Relay.PlayerTimeout,
		CleanupInterval: c.Relay.CleanupInterval,
		DedupWindow:     c.Matches.DedupWindow,
	}

	switch c.Storage.Type {
	case StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.Storage.Redis.URL
		redisCfg.PoolSize = c.Storage.Redis.PoolSize
		redisCfg.MinIdleConns = c.Storage.Redis.MinIdleConns
		redisCfg.RoomTTL = c.Storage.Redis.RoomTTL
		redisCfg.MatchTTL = c.Storage.Redis.MatchTTL
		redisCfg.DedupIndexTTL = c.Storage.Redis.DedupIndexTTL
		cfg.RedisConfig = &redisCfg
	case StorageTypePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = c.Storage.Postgres.URL
		pgCfg.MaxConns = c.Storage.Postgres.MaxConns
		pgCfg.MinConns = c.Storage.Postgres.MinConns
		pgCfg.MaxConnLifetime = c.Storage.Postgres.MaxConnLifetime
		pgCfg.MaxConnIdleTime = c.Storage.Postgres.MaxConnIdleTime
		cfg.PostgresConfig = &pgCfg
	}

	if c.NATS.URL != "" {
		natsCfg := notify.DefaultNATSConfig()
		natsCfg.URL = c.NATS.URL
		if c.NATS.SubjectPrefix != "" {
			natsCfg.SubjectPrefix = c.NATS.SubjectPrefix
		}
		if c.NATS.ReconnectWait > 0 {
			natsCfg.ReconnectWait = c.NATS.ReconnectWait
		}
		cfg.NATSConfig = &natsCfg
	}

	return cfg
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var publisher notify.Publisher = notify.Noop{}
	if cfg.NATSConfig != nil {
		natsPublisher, err := notify.NewNATS(*cfg.NATSConfig, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		publisher = natsPublisher
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	return newWithDependencies(store, publisher, clk, rnd, cfg, logger), nil
}

func newStorage(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		if cfg.Migrate {
			if err := postgres.Migrate(cfg.PostgresConfig.URL, cfg.MigrateForceDirty, logger); err != nil {
				return nil, err
			}
		}
		return postgres.New(ctx, *cfg.PostgresConfig)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'postgres'", storageType)
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	publisher notify.Publisher,
	clk clock.Clock,
	rnd random.Random,
	cfg Config,
	logger *slog.Logger,
) *App {
	roomsCfg := cfg.Rooms
	if roomsCfg == (rooms.Config{}) {
		roomsCfg = rooms.DefaultConfig()
	}
	cacheCfg := cfg.Cache
	if cacheCfg == (shipcache.Config{}) {
		cacheCfg = shipcache.DefaultConfig()
	}

	// Create services
	ships := shipcache.New(clk, cacheCfg, logger)
	hub := relay.NewHub(clk, cacheCfg.Shards, logger)
	coordinator := rooms.NewCoordinator(store, ships, publisher, clk, rnd, roomsCfg, logger)
	relayService := relay.NewService(ships, hub, clk, cfg.PlayerTimeout, logger)
	sweeper := relay.NewSweeper(relayService, cfg.CleanupInterval, logger)
	recorder := matches.NewRecorder(store, publisher, clk, cfg.DedupWindow, logger)
	events := sse.NewHubManager(logger)

	return &App{
		Storage:     store,
		Clock:       clk,
		Random:      rnd,
		Publisher:   publisher,
		Ships:       ships,
		Hub:         hub,
		Coordinator: coordinator,
		Relay:       relayService,
		Sweeper:     sweeper,
		Recorder:    recorder,
		Events:      events,
		logger:      logger,
	}
}

// Close disconnects live sessions and releases the publisher and store
func (a *App) Close() error {
	a.Hub.Close()
	a.Events.Close()
	err := errors.Join(a.Publisher.Close(), a.Storage.Close())
	if err != nil {
		a.logger.Error("failed to close application", slog.String("error", err.Error()))
	}
	return err
}
