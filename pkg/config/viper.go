package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/tracks/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the TRACKS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (TRACKS_API_LISTEN, TRACKS_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
		v.Set("dotdir", target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: TRACKS_API_LISTEN, TRACKS_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("TRACKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Fetch cache
	v.SetDefault("fetch_cache.provider", d.FetchCache.Provider)
	v.SetDefault("fetch_cache.redis_address", d.FetchCache.RedisAddress)
	v.SetDefault("fetch_cache.redis_password", d.FetchCache.RedisPassword)
	v.SetDefault("fetch_cache.redis_prefix", d.FetchCache.RedisPrefix)

	// Fetchers
	v.SetDefault("fetchers.network_enabled", d.Fetchers.NetworkEnabled)
	v.SetDefault("fetchers.timeout", d.Fetchers.Timeout)
	v.SetDefault("fetchers.youtube_base_url", d.Fetchers.YouTubeBaseURL)
	v.SetDefault("fetchers.wikidata_endpoint", d.Fetchers.WikidataEndpoint)

	// Extract
	v.SetDefault("extract.chunk_size", d.Extract.ChunkSize)
	v.SetDefault("extract.background_interval", d.Extract.BackgroundInterval)
	v.SetDefault("extract.background_days", d.Extract.BackgroundDays)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.kafka_brokers", d.EventStream.KafkaBrokers)
	v.SetDefault("eventstream.kafka_topic", d.EventStream.KafkaTopic)

	// Rules
	v.SetDefault("rules.watch_file", d.Rules.WatchFile)
}

// FromViper reads the resolved configuration out of v after flags, env and
// the config file have been layered.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		FetchCache: FetchCacheConfig{
			Provider:      v.GetString("fetch_cache.provider"),
			RedisAddress:  v.GetString("fetch_cache.redis_address"),
			RedisPassword: v.GetString("fetch_cache.redis_password"),
			RedisPrefix:   v.GetString("fetch_cache.redis_prefix"),
		},
		Fetchers: FetchersConfig{
			NetworkEnabled:   v.GetBool("fetchers.network_enabled"),
			Timeout:          v.GetString("fetchers.timeout"),
			YouTubeBaseURL:   v.GetString("fetchers.youtube_base_url"),
			WikidataEndpoint: v.GetString("fetchers.wikidata_endpoint"),
		},
		Extract: ExtractConfig{
			ChunkSize:          v.GetUint("extract.chunk_size"),
			BackgroundInterval: v.GetString("extract.background_interval"),
			BackgroundDays:     v.GetUint("extract.background_days"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		EventStream: EventStreamConfig{
			Provider:     v.GetString("eventstream.provider"),
			KafkaBrokers: v.GetString("eventstream.kafka_brokers"),
			KafkaTopic:   v.GetString("eventstream.kafka_topic"),
		},
		Rules: RulesConfig{
			WatchFile: v.GetString("rules.watch_file"),
		},
	}
}
