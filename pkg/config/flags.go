package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on "tracks serve", "tracks ingest" and "tracks extract").
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.sqlite_path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagStorageDriver    = "storage-driver"
	FlagSQLite           = "sqlite"
	FlagPostgres         = "postgres"
	FlagFetchCache       = "fetch-cache"
	FlagRedisAddress     = "redis-address"
	FlagAPIListen        = "listen"
	FlagChunkSize        = "chunk-size"
	FlagBackgroundDays   = "background-days"
	FlagEventStream      = "eventstream"
	FlagKafkaBrokers     = "kafka-brokers"
	FlagRulesWatchFile   = "rules-file"
	FlagYouTubeBaseURL   = "youtube-base-url"
	FlagWikidataEndpoint = "wikidata-endpoint"
	FlagBackgroundIntrvl = "background-interval"
	FlagFetchTimeout     = "fetch-timeout"
	FlagRedisPrefix      = "redis-prefix"
	FlagKafkaTopic       = "kafka-topic"
)

// Flags is the registry shared by all tracks commands.
var Flags = FlagSet{
	FlagStorageDriver:    {Name: "storage-driver", ViperKey: "storage.driver", Description: "Storage driver (sqlite, postgres, inmemory)"},
	FlagSQLite:           {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database (default: .tracks/tracks.sqlite)"},
	FlagPostgres:         {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagFetchCache:       {Name: "fetch-cache", ViperKey: "fetch_cache.provider", Description: "Fetch cache provider (storage, redis)"},
	FlagRedisAddress:     {Name: "redis-address", ViperKey: "fetch_cache.redis_address", Description: "Redis address for the redis fetch cache"},
	FlagRedisPrefix:      {Name: "redis-prefix", ViperKey: "fetch_cache.redis_prefix", Description: "Key prefix for the redis fetch cache"},
	FlagAPIListen:        {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagChunkSize:        {Name: "chunk-size", ViperKey: "extract.chunk_size", Description: "Raw events read per page during extraction"},
	FlagBackgroundDays:   {Name: "background-days", ViperKey: "extract.background_days", Description: "Recent days kept extracted in the background"},
	FlagBackgroundIntrvl: {Name: "background-interval", ViperKey: "extract.background_interval", Description: "Interval between background extraction runs"},
	FlagEventStream:      {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Event stream provider (nop, kafka)"},
	FlagKafkaBrokers:     {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma separated Kafka brokers"},
	FlagKafkaTopic:       {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for day extracted events"},
	FlagRulesWatchFile:   {Name: "rules-file", ViperKey: "rules.watch_file", Description: "Rule group file to import and watch"},
	FlagYouTubeBaseURL:   {Name: "youtube-base-url", ViperKey: "fetchers.youtube_base_url", Description: "YouTube oEmbed host"},
	FlagWikidataEndpoint: {Name: "wikidata-endpoint", ViperKey: "fetchers.wikidata_endpoint", Description: "Wikidata SPARQL endpoint"},
	FlagFetchTimeout:     {Name: "fetch-timeout", ViperKey: "fetchers.timeout", Description: "Timeout for external fetches"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddPersistentStringFlag registers a string flag on cmd that every
// subcommand inherits.
func AddPersistentStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	cmd.PersistentFlags().StringVarP(target, def.Name, def.Shorthand, defaultString(def.ViperKey), def.Description)
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
