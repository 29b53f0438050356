package config

import (
	"errors"
	"time"
)

// ErrConfiguration is returned when configuration loading or validation fails.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration parameters for all components
// of the archive service, including logging, storage, AI providers, vector
// search, and the HTTP server.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Describe DescribeConfig `mapstructure:"describe"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// LogConfig defines logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DatabaseConfig defines SQLite database parameters.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"              validate:"required"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required"`
}

// ServerConfig defines HTTP server parameters.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"required"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`
}

// IngestConfig defines export ingestion parameters.
type IngestConfig struct {
	// GarbageSpecPath points to the JSON file listing garbage post IDs,
	// phrases to strip, and n-gram report exceptions.
	GarbageSpecPath string `mapstructure:"garbage_spec_path"`
	// ArtifactDir is where filtered export snapshots are written.
	ArtifactDir string `mapstructure:"artifact_dir" validate:"required"`
	NGramSize   int    `mapstructure:"ngram_size"   validate:"required,min=1"`
}

// DescribeConfig defines image description parameters.
type DescribeConfig struct {
	Provider    string        `mapstructure:"provider"     validate:"required,oneof=openai gemini"`
	Token       string        `mapstructure:"token"`
	BaseURL     string        `mapstructure:"base_url"     validate:"omitempty,url"`
	Model       string        `mapstructure:"model"        validate:"required"`
	GeminiModel string        `mapstructure:"gemini_model" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"      validate:"required,min=1s,max=10m"`
	PageSize    int           `mapstructure:"page_size"    validate:"required,min=1"`
	Workers     int           `mapstructure:"workers"      validate:"required,min=1"`
}

// EmbedConfig defines text embedding parameters.
type EmbedConfig struct {
	Token     string        `mapstructure:"token"`
	BaseURL   string        `mapstructure:"base_url"   validate:"omitempty,url"`
	Model     string        `mapstructure:"model"      validate:"required"`
	BatchSize int           `mapstructure:"batch_size" validate:"required,min=1"`
	Timeout   time.Duration `mapstructure:"timeout"    validate:"required,min=1s,max=10m"`
}

// QdrantConfig defines vector store connection parameters.
type QdrantConfig struct {
	Host   string `mapstructure:"host"   validate:"required"`
	Port   int    `mapstructure:"port"   validate:"required,min=1,max=65535"`
	APIKey string `mapstructure:"api_key"`
	UseTLS bool   `mapstructure:"use_tls"`
	// VectorSize must match the embedding model's output dimensions.
	VectorSize uint64 `mapstructure:"vector_size" validate:"required,min=1"`
}

// TelegramConfig defines job notification parameters. Notifications are
// disabled when the token is empty.
type TelegramConfig struct {
	Token   string  `mapstructure:"token"`
	ChatIDs []int64 `mapstructure:"chat_ids"`
}

// JobsConfig defines background job and scheduler parameters.
type JobsConfig struct {
	MaintenanceCron string `mapstructure:"maintenance_cron" validate:"required"`
	SweepCron       string `mapstructure:"sweep_cron"       validate:"required"`
}
