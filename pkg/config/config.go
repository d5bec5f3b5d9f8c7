// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Model, Cache, Redis, Postgres, Kafka, Sink, etc.).
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
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Model      ModelConfig      `yaml:"model"`
	Cache      CacheConfig      `yaml:"cache"`
	Redis      RedisConfig      `yaml:"redis"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Post       PostConfig       `yaml:"post"`
	Sink       SinkConfig       `yaml:"sink"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`

	// AdminKey guards the endpoints that post or rebuild. Empty disables them.
	AdminKey string `yaml:"adminKey"`

	// RateLimit is requests per minute per client address; 0 turns it off.
	RateLimit int `yaml:"rateLimit"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TracingConfig toggles span logging around model load and build.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CorpusConfig describes where the training texts come from and how they are
// cleaned before tokenization.
type CorpusConfig struct {
	Source    string   `yaml:"source"` // json | postgres
	Path      string   `yaml:"path"`
	Table     string   `yaml:"table"`
	Separator string   `yaml:"separator"`
	Strip     []string `yaml:"strip"`
}

// ModelConfig sets the order range built into a model and the choices used
// when a post is generated.
type ModelConfig struct {
	Low             int      `yaml:"low"`
	High            int      `yaml:"high"`
	Orders          []int    `yaml:"orders"`
	LinkModes       []string `yaml:"linkModes"`
	PosOrder        int      `yaml:"posOrder"`
	MaxLookupMisses int      `yaml:"maxLookupMisses"`
}

// CacheConfig selects the model cache backend.
type CacheConfig struct {
	Backend string        `yaml:"backend"` // file | redis | sqlite | none
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// SQLiteConfig holds the path of the sqlite model cache database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Posts string `yaml:"posts"`
}

// PostConfig shapes the text handed to a sink.
type PostConfig struct {
	Suffix      string `yaml:"suffix"`
	MaxLength   int    `yaml:"maxLength"`
	MaxAttempts int    `yaml:"maxAttempts"`
}

// SinkConfig selects where finished posts are delivered.
type SinkConfig struct {
	Type            string        `yaml:"type"` // stdout | kafka | webhook
	WebhookURL      string        `yaml:"webhookUrl"`
	CredentialsFile string        `yaml:"credentialsFile"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ResilienceConfig tunes the retry and circuit breaker used around webhook
// delivery in the poster service.
type ResilienceConfig struct {
	RetryAttempts    int           `yaml:"retryAttempts"`
	RetryDelay       time.Duration `yaml:"retryDelay"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
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

// Validate rejects order settings the model builder would refuse later.
func (c *Config) Validate() error {
	if c.Model.Low < 1 || c.Model.Low > c.Model.High {
		return fmt.Errorf("model order range [%d, %d] is invalid", c.Model.Low, c.Model.High)
	}
	if c.Model.Low > 2 || c.Model.High < 2 {
		return fmt.Errorf("model order range [%d, %d] must include 2", c.Model.Low, c.Model.High)
	}
	for _, n := range c.Model.Orders {
		if n < 2 {
			return fmt.Errorf("model order %d is below 2", n)
		}
	}
	if c.Post.MaxLength <= 0 {
		return fmt.Errorf("post maxLength must be positive, got %d", c.Post.MaxLength)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimit:       120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Corpus: CorpusConfig{
			Source:    "json",
			Table:     "corpus_texts",
			Separator: "\n",
			Strip:     []string{"\"", "“", "”", "(", ")", "[", "]", "{", "}"},
		},
		Model: ModelConfig{
			Low:       1,
			High:      4,
			Orders:    []int{2, 3, 4},
			LinkModes: []string{"full", "last", "random"},
			PosOrder:  4,
		},
		Cache: CacheConfig{
			Backend: "file",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		SQLite: SQLiteConfig{
			Path: "ngram-cache.db",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "ngrambot",
			User:            "ngrambot",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "ngrambot-poster",
			Topics: KafkaTopics{
				Posts: "ngram-posts",
			},
		},
		Post: PostConfig{
			Suffix:    "",
			MaxLength: 140,
		},
		Sink: SinkConfig{
			Type:    "stdout",
			Timeout: 10 * time.Second,
		},
		Resilience: ResilienceConfig{
			RetryAttempts:    3,
			RetryDelay:       500 * time.Millisecond,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
	}
}

// applyEnvOverrides reads NGRAM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NGRAM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NGRAM_SERVER_ADMIN_KEY"); v != "" {
		cfg.Server.AdminKey = v
	}
	if v := os.Getenv("NGRAM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NGRAM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NGRAM_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("NGRAM_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("NGRAM_MODEL_HIGH"); v != "" {
		if high, err := strconv.Atoi(v); err == nil {
			cfg.Model.High = high
		}
	}
	if v := os.Getenv("NGRAM_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("NGRAM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NGRAM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NGRAM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("NGRAM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("NGRAM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NGRAM_POST_SUFFIX"); v != "" {
		cfg.Post.Suffix = v
	}
	if v := os.Getenv("NGRAM_SINK_TYPE"); v != "" {
		cfg.Sink.Type = v
	}
	if v := os.Getenv("NGRAM_SINK_WEBHOOK_URL"); v != "" {
		cfg.Sink.WebhookURL = v
	}
	if v := os.Getenv("NGRAM_SINK_CREDENTIALS_FILE"); v != "" {
		cfg.Sink.CredentialsFile = v
	}
}
