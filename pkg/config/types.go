package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent tracks configuration stored as
// config.toml in the .tracks/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	FetchCache  FetchCacheConfig  `toml:"fetch_cache"`
	Fetchers    FetchersConfig    `toml:"fetchers"`
	Extract     ExtractConfig     `toml:"extract"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Rules       RulesConfig       `toml:"rules"`
}

// StorageConfig selects the storage driver.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// FetchCacheConfig selects where fetch outcomes are cached. The "storage"
// provider uses the storage driver.
type FetchCacheConfig struct {
	Provider      string `toml:"provider,omitempty"`
	RedisAddress  string `toml:"redis_address,omitempty"`
	RedisPassword string `toml:"redis_password,omitempty"`
	RedisPrefix   string `toml:"redis_prefix,omitempty"`
}

// FetchersConfig configures the built-in external fetchers.
type FetchersConfig struct {
	NetworkEnabled   bool   `toml:"network_enabled"`
	Timeout          string `toml:"timeout,omitempty"`
	YouTubeBaseURL   string `toml:"youtube_base_url,omitempty"`
	WikidataEndpoint string `toml:"wikidata_endpoint,omitempty"`
}

// ExtractConfig tunes extraction and the background worker.
type ExtractConfig struct {
	ChunkSize          uint   `toml:"chunk_size,omitempty"`
	BackgroundInterval string `toml:"background_interval,omitempty"`
	BackgroundDays     uint   `toml:"background_days,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig selects where day extracted events are published.
// KafkaBrokers is a comma separated host:port list.
type EventStreamConfig struct {
	Provider     string `toml:"provider,omitempty"`
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// RulesConfig holds the rule file watched by "tracks serve".
type RulesConfig struct {
	WatchFile string `toml:"watch_file,omitempty"`
}

// SplitList splits a comma separated value, dropping empty items.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func oneOf(key string, allowed ...string) func(v string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("invalid value for %s: %q (allowed: %s)", key, v, strings.Join(allowed, ", "))
	}
}

func stringKey(field func(c *Config) *string, validate func(string) error) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if validate != nil {
				if err := validate(v); err != nil {
					return err
				}
			}
			*field(c) = v
			return nil
		},
	}
}

func durationKey(key string, field func(c *Config) *string) configKeyInfo {
	return stringKey(field, func(v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return nil
	})
}

func uintKey(key string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": stringKey(func(c *Config) *string { return &c.Storage.Driver },
		oneOf("storage.driver", DriverSQLite, DriverPostgres, DriverInMemory)),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }, nil),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }, nil),

	"fetch_cache.provider": stringKey(func(c *Config) *string { return &c.FetchCache.Provider },
		oneOf("fetch_cache.provider", FetchCacheStorage, FetchCacheRedis)),
	"fetch_cache.redis_address":  stringKey(func(c *Config) *string { return &c.FetchCache.RedisAddress }, nil),
	"fetch_cache.redis_password": stringKey(func(c *Config) *string { return &c.FetchCache.RedisPassword }, nil),
	"fetch_cache.redis_prefix":   stringKey(func(c *Config) *string { return &c.FetchCache.RedisPrefix }, nil),

	"fetchers.network_enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Fetchers.NetworkEnabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for fetchers.network_enabled: %w", err)
			}
			c.Fetchers.NetworkEnabled = b
			return nil
		},
	},
	"fetchers.timeout":           durationKey("fetchers.timeout", func(c *Config) *string { return &c.Fetchers.Timeout }),
	"fetchers.youtube_base_url":  stringKey(func(c *Config) *string { return &c.Fetchers.YouTubeBaseURL }, nil),
	"fetchers.wikidata_endpoint": stringKey(func(c *Config) *string { return &c.Fetchers.WikidataEndpoint }, nil),

	"extract.chunk_size": uintKey("extract.chunk_size", func(c *Config) *uint { return &c.Extract.ChunkSize }),
	"extract.background_interval": durationKey("extract.background_interval",
		func(c *Config) *string { return &c.Extract.BackgroundInterval }),
	"extract.background_days": uintKey("extract.background_days", func(c *Config) *uint { return &c.Extract.BackgroundDays }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }, nil),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider },
		oneOf("eventstream.provider", EventStreamNop, EventStreamKafka)),
	"eventstream.kafka_brokers": stringKey(func(c *Config) *string { return &c.EventStream.KafkaBrokers }, nil),
	"eventstream.kafka_topic":   stringKey(func(c *Config) *string { return &c.EventStream.KafkaTopic }, nil),

	"rules.watch_file": stringKey(func(c *Config) *string { return &c.Rules.WatchFile }, nil),
}
