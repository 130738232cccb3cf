package models

import "time"

// StoreBackend names a Task Store implementation.
type StoreBackend string

const (
	BackendMemory StoreBackend = "memory"
	BackendFile   StoreBackend = "file"
	BackendMongo  StoreBackend = "mongo"
	BackendNeo4j  StoreBackend = "neo4j"
)

// MongoConfig holds connection settings for the MongoDB store.
type MongoConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Database string `yaml:"database" mapstructure:"database"`
}

// Neo4jConfig holds connection settings for the Neo4j store.
type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// BreakerConfig controls the circuit breaker wrapped around remote stores.
type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxRequests         uint32        `yaml:"max_requests" mapstructure:"max_requests"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// File is the rotated log file path. Empty means stderr.
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// AlertConfig holds alert thresholds. Zero keeps the built-in default.
type AlertConfig struct {
	BlockedHours int `yaml:"blocked_hours" mapstructure:"blocked_hours"`
	StaleDays    int `yaml:"stale_days" mapstructure:"stale_days"`
	ReviewDays   int `yaml:"review_days" mapstructure:"review_days"`
	MaxTodo      int `yaml:"max_todo" mapstructure:"max_todo"`
}

// BoardConfig holds system-wide settings read from .taskboard.yaml via Viper.
type BoardConfig struct {
	Backend        StoreBackend  `yaml:"backend" mapstructure:"backend"`
	FilePath       string        `yaml:"file_path" mapstructure:"file_path"`
	DefaultProject string        `yaml:"default_project" mapstructure:"default_project"`
	PollInterval   time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	HTTPAddr       string        `yaml:"http_addr" mapstructure:"http_addr"`
	EventLogPath   string        `yaml:"event_log" mapstructure:"event_log"`
	Mongo          MongoConfig   `yaml:"mongo" mapstructure:"mongo"`
	Neo4j          Neo4jConfig   `yaml:"neo4j" mapstructure:"neo4j"`
	Breaker        BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	Log            LogConfig     `yaml:"log" mapstructure:"log"`
	Alerts         AlertConfig   `yaml:"alerts" mapstructure:"alerts"`
}
