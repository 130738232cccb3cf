// Package core contains the task board engine: ordering, the per-project
// board state machine, the drag session controller, filtering, task detail
// operations and configuration loading.
package core

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// ConfigFileName is the base name of the board configuration file.
const ConfigFileName = ".taskboard"

// EnvPrefix prefixes environment variables that override configuration keys,
// e.g. TASKBOARD_MONGO_URI for mongo.uri.
const EnvPrefix = "TASKBOARD"

// ConfigurationManager loads and validates the board configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.BoardConfig, error)
	ValidateConfig(cfg *models.BoardConfig) error
}

type viperConfigManager struct {
	// basePath is the directory holding .taskboard.yaml and .env.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager reading files from
// basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *models.BoardConfig {
	return &models.BoardConfig{
		Backend:        models.BackendFile,
		FilePath:       "board.yaml",
		DefaultProject: "default",
		PollInterval:   2 * time.Second,
		HTTPAddr:       "127.0.0.1:8080",
		EventLogPath:   ".taskboard_events.jsonl",
		Mongo: models.MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "taskboard",
		},
		Neo4j: models.Neo4jConfig{
			URI:      "neo4j://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Breaker: models.BreakerConfig{
			Enabled:             true,
			MaxRequests:         1,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
		Log: models.LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads .taskboard.yaml from the base path, after loading an
// optional .env file into the process environment. TASKBOARD_* variables
// override file values; missing keys keep their defaults. Relative file
// paths are resolved against the base path.
func (cm *viperConfigManager) LoadConfig() (*models.BoardConfig, error) {
	if err := godotenv.Load(filepath.Join(cm.basePath, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", string(cfg.Backend))
	v.SetDefault("file_path", cfg.FilePath)
	v.SetDefault("default_project", cfg.DefaultProject)
	v.SetDefault("poll_interval", cfg.PollInterval)
	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("event_log", cfg.EventLogPath)
	v.SetDefault("mongo.uri", cfg.Mongo.URI)
	v.SetDefault("mongo.database", cfg.Mongo.Database)
	v.SetDefault("neo4j.uri", cfg.Neo4j.URI)
	v.SetDefault("neo4j.username", cfg.Neo4j.Username)
	v.SetDefault("neo4j.password", cfg.Neo4j.Password)
	v.SetDefault("neo4j.database", cfg.Neo4j.Database)
	v.SetDefault("breaker.enabled", cfg.Breaker.Enabled)
	v.SetDefault("breaker.max_requests", cfg.Breaker.MaxRequests)
	v.SetDefault("breaker.timeout", cfg.Breaker.Timeout)
	v.SetDefault("breaker.consecutive_failures", cfg.Breaker.ConsecutiveFailures)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("alerts.blocked_hours", 0)
	v.SetDefault("alerts.stale_days", 0)
	v.SetDefault("alerts.review_days", 0)
	v.SetDefault("alerts.max_todo", 0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	cfg.Backend = models.StoreBackend(strings.ToLower(v.GetString("backend")))
	cfg.FilePath = cm.resolve(v.GetString("file_path"))
	cfg.DefaultProject = v.GetString("default_project")
	cfg.PollInterval = v.GetDuration("poll_interval")
	cfg.HTTPAddr = v.GetString("http_addr")
	cfg.EventLogPath = cm.resolve(v.GetString("event_log"))
	cfg.Mongo.URI = v.GetString("mongo.uri")
	cfg.Mongo.Database = v.GetString("mongo.database")
	cfg.Neo4j.URI = v.GetString("neo4j.uri")
	cfg.Neo4j.Username = v.GetString("neo4j.username")
	cfg.Neo4j.Password = v.GetString("neo4j.password")
	cfg.Neo4j.Database = v.GetString("neo4j.database")
	cfg.Breaker.Enabled = v.GetBool("breaker.enabled")
	cfg.Breaker.MaxRequests = v.GetUint32("breaker.max_requests")
	cfg.Breaker.Timeout = v.GetDuration("breaker.timeout")
	cfg.Breaker.ConsecutiveFailures = v.GetUint32("breaker.consecutive_failures")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.File = v.GetString("log.file")
	if cfg.Log.File != "" {
		cfg.Log.File = cm.resolve(cfg.Log.File)
	}
	cfg.Log.MaxSizeMB = v.GetInt("log.max_size_mb")
	cfg.Log.MaxBackups = v.GetInt("log.max_backups")
	cfg.Log.MaxAgeDays = v.GetInt("log.max_age_days")
	cfg.Alerts.BlockedHours = v.GetInt("alerts.blocked_hours")
	cfg.Alerts.StaleDays = v.GetInt("alerts.stale_days")
	cfg.Alerts.ReviewDays = v.GetInt("alerts.review_days")
	cfg.Alerts.MaxTodo = v.GetInt("alerts.max_todo")

	return cfg, nil
}

func (cm *viperConfigManager) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cm.basePath, p)
}

var validBackends = map[models.StoreBackend]bool{
	models.BackendMemory: true,
	models.BackendFile:   true,
	models.BackendMongo:  true,
	models.BackendNeo4j:  true,
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// ValidateConfig checks the configuration and lists every invalid value.
func (cm *viperConfigManager) ValidateConfig(cfg *models.BoardConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if !validBackends[cfg.Backend] {
		errs = append(errs, fmt.Sprintf("backend %q is invalid, must be one of: memory, file, mongo, neo4j", cfg.Backend))
	}
	if cfg.DefaultProject == "" {
		errs = append(errs, "default_project must not be empty")
	}
	switch cfg.Backend {
	case models.BackendFile:
		if cfg.FilePath == "" {
			errs = append(errs, "file_path must not be empty for the file backend")
		}
	case models.BackendMongo:
		if cfg.Mongo.URI == "" || cfg.Mongo.Database == "" {
			errs = append(errs, "mongo.uri and mongo.database are required for the mongo backend")
		}
	case models.BackendNeo4j:
		if cfg.Neo4j.URI == "" {
			errs = append(errs, "neo4j.uri is required for the neo4j backend")
		}
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("poll_interval must be positive, got %s", cfg.PollInterval))
	}
	if cfg.Breaker.Enabled && cfg.Breaker.ConsecutiveFailures == 0 {
		errs = append(errs, "breaker.consecutive_failures must be at least 1")
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid", cfg.Log.Level))
	}
	if cfg.Alerts.BlockedHours < 0 || cfg.Alerts.StaleDays < 0 || cfg.Alerts.ReviewDays < 0 || cfg.Alerts.MaxTodo < 0 {
		errs = append(errs, "alerts thresholds must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
