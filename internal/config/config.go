// Package config provides configuration loading, validation, and management
// for the archive service. It handles reading from YAML files, setting
// default values, and validating configuration parameters.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. The config file at path (optional, YAML)
// 3. ARCH_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfig(v, path); err != nil {
		return nil, fmt.Errorf("%w: failed to load config file: %v", ErrConfiguration, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// readConfig initializes and loads the configuration using viper
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %v", err)
		}
	}

	return nil
}

// setDefaults sets default values for optional configuration parameters
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.conn_max_lifetime", DefaultDBConnMaxLifetime)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)

	v.SetDefault("ingest.artifact_dir", DefaultIngestArtifactDir)
	v.SetDefault("ingest.ngram_size", DefaultIngestNGramSize)

	v.SetDefault("describe.provider", DefaultDescribeProvider)
	v.SetDefault("describe.base_url", DefaultDescribeBaseURL)
	v.SetDefault("describe.model", DefaultDescribeModel)
	v.SetDefault("describe.gemini_model", DefaultDescribeGeminiModel)
	v.SetDefault("describe.timeout", DefaultDescribeTimeout)
	v.SetDefault("describe.page_size", DefaultDescribePageSize)
	v.SetDefault("describe.workers", DefaultDescribeWorkers)

	v.SetDefault("embed.base_url", DefaultEmbedBaseURL)
	v.SetDefault("embed.model", DefaultEmbedModel)
	v.SetDefault("embed.batch_size", DefaultEmbedBatchSize)
	v.SetDefault("embed.timeout", DefaultEmbedTimeout)

	v.SetDefault("qdrant.host", DefaultQdrantHost)
	v.SetDefault("qdrant.port", DefaultQdrantPort)
	v.SetDefault("qdrant.vector_size", DefaultQdrantVectorSize)

	v.SetDefault("jobs.maintenance_cron", DefaultJobsMaintenanceCron)
	v.SetDefault("jobs.sweep_cron", DefaultJobsSweepCron)
}
