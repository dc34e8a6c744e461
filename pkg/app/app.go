// Package app assembles a running tracks instance from resolved
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/dotdir"
	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/eventstream"
	"github.com/papercomputeco/tracks/pkg/eventstream/async"
	"github.com/papercomputeco/tracks/pkg/eventstream/kafka"
	"github.com/papercomputeco/tracks/pkg/eventstream/nop"
	"github.com/papercomputeco/tracks/pkg/extract"
	"github.com/papercomputeco/tracks/pkg/fetchcache"
	"github.com/papercomputeco/tracks/pkg/fetchcache/redis"
	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/fetcher/builtin"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/query"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/storage"
	"github.com/papercomputeco/tracks/pkg/storage/inmemory"
	"github.com/papercomputeco/tracks/pkg/storage/postgres"
	"github.com/papercomputeco/tracks/pkg/storage/sqlite"
)

// App holds every wired component. Close releases them.
type App struct {
	Config    *config.Config
	Driver    storage.Driver
	Cache     fetchcache.Cache
	Registry  *fetcher.Registry
	Engine    *engine.Engine
	Extractor *extract.Extractor
	Publisher eventstream.Publisher
	Service   *query.Service
	Logger    *slog.Logger

	backgroundInterval time.Duration
	closers            []func() error
}

// Options tune New.
type Options struct {
	// ConfigDir overrides .tracks/ resolution for the default SQLite path.
	ConfigDir string

	// Fetchers replaces the built-in fetchers.
	Fetchers []fetcher.Fetcher

	Logger *slog.Logger
}

// New wires storage, caches, fetchers, the engine, the extractor and the
// query layer according to cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	a := &App{Config: cfg, Logger: log}
	if err := a.wire(ctx, opts); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) (err error) {
	cfg, log := a.Config, a.Logger
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	fetchTimeout, err := parseDuration("fetchers.timeout", cfg.Fetchers.Timeout)
	if err != nil {
		return err
	}
	a.backgroundInterval, err = parseDuration("extract.background_interval", cfg.Extract.BackgroundInterval)
	if err != nil {
		return err
	}

	a.Driver, err = newDriver(ctx, cfg.Storage, opts.ConfigDir, log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Driver.Close)

	a.Cache, err = a.newFetchCache(ctx, cfg.FetchCache)
	if err != nil {
		return err
	}

	fetchers := opts.Fetchers
	if fetchers == nil {
		fetchers = builtin.Fetchers(builtin.Config{
			Timeout:          fetchTimeout,
			YouTubeBaseURL:   cfg.Fetchers.YouTubeBaseURL,
			WikidataEndpoint: cfg.Fetchers.WikidataEndpoint,
		})
	}
	a.Registry, err = fetcher.NewRegistry(log, fetchers...)
	if err != nil {
		return fmt.Errorf("building fetcher registry: %w", err)
	}

	defaults, err := rules.LoadDefaults()
	if err != nil {
		return fmt.Errorf("loading default rule groups: %w", err)
	}

	a.Engine = engine.New(engine.Config{
		Groups:    a.Driver,
		Defaults:  defaults,
		Registry:  a.Registry,
		Cache:     a.Cache,
		Logger:    log,
		CacheOnly: !cfg.Fetchers.NetworkEnabled,
	})

	a.Publisher, err = newPublisher(cfg.EventStream, log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Publisher.Close)

	a.Extractor = extract.New(extract.Config{
		Store:     a.Driver,
		Engine:    a.Engine,
		ChunkSize: int(cfg.Extract.ChunkSize),
		Publisher: a.Publisher,
		Logger:    log,
	})

	a.Service = query.New(query.Config{
		Store:     a.Driver,
		Engine:    a.Engine,
		Extractor: a.Extractor,
		Defaults:  defaults,
		Logger:    log,
	})

	return nil
}

// NewWorker builds the background extraction worker from the extract
// section.
func (a *App) NewWorker() *extract.Worker {
	return extract.NewWorker(a.Extractor, a.backgroundInterval, int(a.Config.Extract.BackgroundDays))
}

// parseDuration parses a duration setting. An empty value selects the
// component default.
func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

// Close releases components in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newDriver(ctx context.Context, cfg config.StorageConfig, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch cfg.Driver {
	case config.DriverInMemory:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires storage.postgres_dsn")
		}
		driver, err := postgres.NewDriver(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case config.DriverSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			var err error
			path, err = dotdir.NewManager().Path(configDir, dotdir.DatabaseFile)
			if err != nil {
				return nil, fmt.Errorf("resolving database path: %w", err)
			}
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *App) newFetchCache(ctx context.Context, cfg config.FetchCacheConfig) (fetchcache.Cache, error) {
	switch cfg.Provider {
	case config.FetchCacheStorage, "":
		return fetchcache.NewStore(a.Driver), nil

	case config.FetchCacheRedis:
		c, err := redis.New(ctx, redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		a.Logger.Info("using redis fetch cache", "address", cfg.RedisAddress)
		return c, nil

	default:
		return nil, fmt.Errorf("unknown fetch cache provider %q", cfg.Provider)
	}
}

func newPublisher(cfg config.EventStreamConfig, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case config.EventStreamNop, "":
		return nop.NewPublisher(), nil

	case config.EventStreamKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: config.SplitList(cfg.KafkaBrokers),
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing day events to kafka", "topic", cfg.KafkaTopic)
		return async.NewPool(&async.Config{Publisher: p, Logger: log})

	default:
		return nil, fmt.Errorf("unknown event stream provider %q", cfg.Provider)
	}
}
