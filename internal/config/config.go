// Package config loads harvester settings from defaults, an optional YAML
// file, a .env file and HARVEST_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"catalog-harvester/common"
	"catalog-harvester/internal/catalog"
)

// EnvPrefix prefixes every environment override, e.g. HARVEST_SINK_KIND.
const EnvPrefix = "HARVEST"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads the configuration. With an empty configPath the file named by
// HARVEST_CONFIG is used, otherwise harvester.yaml is looked up in the
// current directory and ~/.catalog-harvester; a missing file is not an error
// unless it was named explicitly.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = common.GetEnv(EnvPrefix+"_CONFIG", "")
	}
	explicit := configPath != ""
	if explicit {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("harvester")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".catalog-harvester"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", catalog.DefaultBaseURL)
	v.SetDefault("catalog.user_agent", catalog.DefaultUserAgent)
	v.SetDefault("catalog.timeout", catalog.DefaultTimeout)
	v.SetDefault("catalog.page_size", catalog.DefaultPageSize)
	v.SetDefault("catalog.requests_per_second", 1.0)
	v.SetDefault("catalog.respect_robots", true)

	v.SetDefault("storage.dir", "data/pages")
	v.SetDefault("storage.slots", 100)

	v.SetDefault("sink.kind", SinkSQLite)
	v.SetDefault("sink.sqlite_path", "data/books.db")
	v.SetDefault("sink.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("sink.mongo_database", "catalog")
	v.SetDefault("sink.mongo_collection", "books")
	v.SetDefault("sink.neo4j_uri", "neo4j://localhost:7687")
	v.SetDefault("sink.neo4j_user", "neo4j")
	v.SetDefault("sink.neo4j_password", "")

	v.SetDefault("kafka.broker", "localhost:9092")
	v.SetDefault("kafka.jobs_topic", "harvest.jobs")
	v.SetDefault("kafka.books_topic", "harvest.books")
	v.SetDefault("kafka.dlq_topic", "harvest.dlq")
	v.SetDefault("kafka.group_id", "harvest-workers")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.status_prefix", "harvest:status:")
	v.SetDefault("redis.status_ttl", 24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)

	v.SetDefault("api.addr", ":8080")

	v.SetDefault("worker.concurrent_jobs", 2)
	v.SetDefault("worker.job_timeout", 30*time.Minute)
	v.SetDefault("worker.metrics_addr", ":9090")
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Catalog.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: catalog.base_url must be an absolute URL: %q", ErrInvalidConfig, cfg.Catalog.BaseURL)
	}
	if cfg.Catalog.PageSize < 1 {
		return fmt.Errorf("%w: catalog.page_size must be at least 1", ErrInvalidConfig)
	}
	if cfg.Catalog.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: catalog.requests_per_second must not be negative", ErrInvalidConfig)
	}
	if cfg.Storage.Slots < 1 {
		return fmt.Errorf("%w: storage.slots must be at least 1", ErrInvalidConfig)
	}
	if cfg.Worker.ConcurrentJobs < 1 {
		return fmt.Errorf("%w: worker.concurrent_jobs must be at least 1", ErrInvalidConfig)
	}

	switch cfg.Sink.Kind {
	case SinkSQLite, SinkMongo, SinkNeo4j, SinkKafka:
	default:
		return fmt.Errorf("%w: unknown sink.kind: %s", ErrInvalidConfig, cfg.Sink.Kind)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("%w: invalid logging level: %s", ErrInvalidConfig, cfg.Logging.Level)
	}

	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("%w: invalid logging format: %s", ErrInvalidConfig, cfg.Logging.Format)
	}

	return nil
}
