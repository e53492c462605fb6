// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Blob, Index, Search, Redis, Kafka, Postgres, Mongo, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Blob     BlobConfig     `yaml:"blob"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the number of requests a client may make per RateWindow.
	// Zero disables limiting.
	RateLimit   int           `yaml:"rateLimit"`
	RateWindow  time.Duration `yaml:"rateWindow"`
	CORSOrigins []string      `yaml:"corsOrigins"`
}

// BlobConfig selects the blob store backend that holds blocks, bucket
// location maps, index metadata and the PageRank/title lookups.
type BlobConfig struct {
	// Backend is "local" (a directory tree) or "gcs".
	Backend  string        `yaml:"backend"`
	Bucket   string        `yaml:"bucket"`
	LocalDir string        `yaml:"localDir"`
	Timeout  time.Duration `yaml:"timeout"`
	// FailureThreshold trips the circuit breaker guarding remote block
	// fetches on the query path. Zero disables the breaker.
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// IndexConfig controls the offline build.
type IndexConfig struct {
	WorkDir       string   `yaml:"workDir"`
	Fields        []string `yaml:"fields"`
	BlockSize     int      `yaml:"blockSize"`
	Parallelism   int      `yaml:"parallelism"`
	BucketRetries int      `yaml:"bucketRetries"`
	// CorpusPath is a JSON-lines corpus file. When empty the corpus is read
	// from the configured Mongo collection.
	CorpusPath string `yaml:"corpusPath"`
	// TitlesObject is where BuildAll publishes the id to title table read by
	// the searcher. Empty skips it.
	TitlesObject string `yaml:"titlesObject"`
}

// SearchConfig controls query execution and score fusion.
type SearchConfig struct {
	CacheDir           string        `yaml:"cacheDir"`
	TopN               int           `yaml:"topN"`
	MaxResults         int           `yaml:"maxResults"`
	RelevanceThreshold float64       `yaml:"relevanceThreshold"`
	Weights            WeightsConfig `yaml:"weights"`
	PageRankPath       string        `yaml:"pageRankPath"`
	TitlesPath         string        `yaml:"titlesPath"`
}

// WeightsConfig holds the per-signal fusion weights.
type WeightsConfig struct {
	Body     float64 `yaml:"body"`
	Title    float64 `yaml:"title"`
	Anchor   float64 `yaml:"anchor"`
	PageRank float64 `yaml:"pageRank"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// MongoConfig points at the collection holding the raw corpus.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for the query pipeline.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the build or the query path cannot run
// with.
func (c *Config) Validate() error {
	if c.Index.BlockSize <= 0 {
		return fmt.Errorf("index.blockSize must be positive, got %d", c.Index.BlockSize)
	}
	switch c.Blob.Backend {
	case "local":
		if c.Blob.LocalDir == "" {
			return fmt.Errorf("blob.localDir is required for the local backend")
		}
	case "gcs":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rateWindow must be positive when rateLimit is set")
	}
	if c.Search.TopN <= 0 || c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.topN and search.maxResults must be positive")
	}
	return nil
}

// defaultConfig returns a Config matching the reference deployment: 124
// buckets of ~2MB blocks, top-100 per signal and 0.35/0.35/0.05/0.25 fusion.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			RateWindow:      time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Blob: BlobConfig{
			Backend:          "local",
			LocalDir:         "data/blobs",
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Index: IndexConfig{
			WorkDir:       "data/build",
			Fields:        []string{"body", "title", "anchor"},
			BlockSize:     1999998,
			Parallelism:   8,
			BucketRetries: 3,
			TitlesObject:  "titles/titles.json",
		},
		Search: SearchConfig{
			CacheDir:           "data/indexes",
			TopN:               100,
			MaxResults:         100,
			RelevanceThreshold: 0.1,
			Weights: WeightsConfig{
				Body:     0.35,
				Title:    0.35,
				Anchor:   0.05,
				PageRank: 0.25,
			},
			PageRankPath: "pr/pr.json",
			TitlesPath:   "titles/titles.json",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "wikisearch",
			User:            "wikisearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "wikisearch-searcher",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "wikisearch",
			Collection: "pages",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_BLOB_BACKEND"); v != "" {
		cfg.Blob.Backend = v
	}
	if v := os.Getenv("SP_BLOB_BUCKET"); v != "" {
		cfg.Blob.Bucket = v
	}
	if v := os.Getenv("SP_BLOB_LOCAL_DIR"); v != "" {
		cfg.Blob.LocalDir = v
	}
	if v := os.Getenv("SP_INDEX_WORK_DIR"); v != "" {
		cfg.Index.WorkDir = v
	}
	if v := os.Getenv("SP_INDEX_CORPUS_PATH"); v != "" {
		cfg.Index.CorpusPath = v
	}
	if v := os.Getenv("SP_INDEX_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Parallelism = n
		}
	}
	if v := os.Getenv("SP_SEARCH_CACHE_DIR"); v != "" {
		cfg.Search.CacheDir = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
