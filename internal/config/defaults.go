package config

import "time"

// Default values for configuration
const (
	// Log defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Database defaults
	DefaultDBPath            = "archive.db"
	DefaultDBConnMaxLifetime = time.Hour

	// Server defaults
	DefaultServerAddr            = ":8080"
	DefaultServerReadTimeout     = 30 * time.Second
	DefaultServerWriteTimeout    = 5 * time.Minute // long-running enrichment endpoints
	DefaultServerShutdownTimeout = 10 * time.Second

	// Ingest defaults
	DefaultIngestArtifactDir = "artifacts"
	DefaultIngestNGramSize   = 3

	// Describe defaults
	DefaultDescribeProvider    = "openai"
	DefaultDescribeBaseURL     = "https://api.openai.com/v1"
	DefaultDescribeModel       = "gpt-4o"
	DefaultDescribeGeminiModel = "gemini-2.0-flash"
	DefaultDescribeTimeout     = 2 * time.Minute
	DefaultDescribePageSize    = 50
	DefaultDescribeWorkers     = 4

	// Embed defaults
	DefaultEmbedBaseURL   = "https://api.openai.com/v1"
	DefaultEmbedModel     = "text-embedding-3-small"
	DefaultEmbedBatchSize = 128
	DefaultEmbedTimeout   = 2 * time.Minute

	// Qdrant defaults
	DefaultQdrantHost       = "localhost"
	DefaultQdrantPort       = 6334
	DefaultQdrantVectorSize = 1536

	// Jobs defaults
	DefaultJobsMaintenanceCron = "0 4 * * *"
	DefaultJobsSweepCron       = "30 * * * *"
)
