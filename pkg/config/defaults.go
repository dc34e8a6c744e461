package config

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverInMemory = "inmemory"
)

// Fetch cache providers.
const (
	FetchCacheStorage = "storage"
	FetchCacheRedis   = "redis"
)

// Event stream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

const (
	defaultAPIListen = ":8765"

	defaultFetchTimeout     = "30s"
	defaultYouTubeBaseURL   = "https://www.youtube.com"
	defaultWikidataEndpoint = "https://query.wikidata.org/sparql"

	defaultChunkSize          = 1000
	defaultBackgroundInterval = "5m"
	defaultBackgroundDays     = 2

	defaultRedisAddress = "localhost:6379"
	defaultRedisPrefix  = "tracks:fetch:"

	defaultKafkaTopic = "tracks.extraction"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		FetchCache: FetchCacheConfig{
			Provider:     FetchCacheStorage,
			RedisAddress: defaultRedisAddress,
			RedisPrefix:  defaultRedisPrefix,
		},
		Fetchers: FetchersConfig{
			NetworkEnabled:   true,
			Timeout:          defaultFetchTimeout,
			YouTubeBaseURL:   defaultYouTubeBaseURL,
			WikidataEndpoint: defaultWikidataEndpoint,
		},
		Extract: ExtractConfig{
			ChunkSize:          defaultChunkSize,
			BackgroundInterval: defaultBackgroundInterval,
			BackgroundDays:     defaultBackgroundDays,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider:   EventStreamNop,
			KafkaTopic: defaultKafkaTopic,
		},
	}
}
