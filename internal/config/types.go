package config

import "time"

// Sink kinds.
const (
	SinkSQLite = "sqlite"
	SinkMongo  = "mongo"
	SinkNeo4j  = "neo4j"
	SinkKafka  = "kafka"
)

// Config represents the complete harvester configuration.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Storage StorageConfig `mapstructure:"storage"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
	API     APIConfig     `mapstructure:"api"`
	Worker  WorkerConfig  `mapstructure:"worker"`
}

// CatalogConfig describes the search endpoint and how it is requested.
type CatalogConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PageSize          int           `mapstructure:"page_size"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
}

// StorageConfig controls where raw pages are kept.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
	// Slots is the number of page files reserved per search.
	Slots int `mapstructure:"slots"`
}

// SinkConfig selects and configures the insertion sink.
type SinkConfig struct {
	Kind            string `mapstructure:"kind"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`
	Neo4jURI        string `mapstructure:"neo4j_uri"`
	Neo4jUser       string `mapstructure:"neo4j_user"`
	Neo4jPassword   string `mapstructure:"neo4j_password"`
}

// KafkaConfig holds broker and topic names.
type KafkaConfig struct {
	Broker     string `mapstructure:"broker"`
	JobsTopic  string `mapstructure:"jobs_topic"`
	BooksTopic string `mapstructure:"books_topic"`
	DLQTopic   string `mapstructure:"dlq_topic"`
	GroupID    string `mapstructure:"group_id"`
}

// RedisConfig holds the harvest status store settings.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	StatusPrefix string        `mapstructure:"status_prefix"`
	StatusTTL    time.Duration `mapstructure:"status_ttl"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// APIConfig holds the HTTP API listener settings.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// WorkerConfig controls how the job consumer runs sessions.
type WorkerConfig struct {
	ConcurrentJobs int           `mapstructure:"concurrent_jobs"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}
