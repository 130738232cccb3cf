// Package internal provides the App struct that wires all components of the
// task board engine together and initializes the CLI layer.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/valter-silva-au/taskboard/internal/cli"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/logging"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// connectTimeout bounds dialing a remote store at startup.
const connectTimeout = 15 * time.Second

// App holds all service dependencies of the task board.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.BoardConfig

	Logger    *logrus.Logger
	logCloser io.Closer

	// Storage layer. Store is what the boards talk to; it may be a
	// BreakerStore around the backend.
	Store   core.TaskStore
	closers []func(context.Context) error

	// Board sessions
	Sessions *core.SessionManager

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
}

// NewApp creates and wires all components. basePath is the directory holding
// .taskboard.yaml, .env and, by default, the board file and event log.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Logging ---
	app.Logger, app.logCloser, err = logging.New("taskboard", cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}

	// --- Storage layer ---
	if err := app.openStore(cfg); err != nil {
		_ = app.Close()
		return nil, err
	}

	// --- Observability ---
	var events core.EventLogger
	if cfg.EventLogPath != "" {
		app.EventLog, err = observability.NewJSONLEventLog(cfg.EventLogPath)
		if err != nil {
			// Non-fatal: run without the event log and metrics.
			app.Logger.WithError(err).Warn("event log disabled")
			app.EventLog = nil
		}
	}
	if app.EventLog != nil {
		events = app.EventLog
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, observability.ThresholdsFromConfig(cfg.Alerts))
	}

	// --- Board sessions ---
	app.Sessions = core.NewSessionManager(app.Store, events, app.Logger)

	// --- Wire CLI package-level variables ---
	cli.Sessions = app.Sessions
	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc
	cli.AlertEngine = app.AlertEngine
	cli.Logger = app.Logger
	cli.DefaultProject = cfg.DefaultProject
	cli.HTTPAddr = cfg.HTTPAddr

	app.Logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"project": cfg.DefaultProject,
	}).Debug("taskboard initialized")
	return app, nil
}

// openStore builds the configured backend. Remote backends are wrapped in a
// circuit breaker when enabled.
func (a *App) openStore(cfg *models.BoardConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var remote core.TaskStore
	switch cfg.Backend {
	case models.BackendMemory:
		a.Store = storage.NewMemoryStore()
		return nil

	case models.BackendFile:
		fs := storage.NewFileStore(cfg.FilePath, a.Logger)
		a.closers = append(a.closers, func(context.Context) error { return fs.Close() })
		a.Store = fs
		return nil

	case models.BackendMongo:
		ms, err := storage.NewMongoStore(ctx, cfg.Mongo, cfg.PollInterval, a.Logger)
		if err != nil {
			return fmt.Errorf("connecting to mongo: %w", err)
		}
		a.closers = append(a.closers, ms.Close)
		remote = ms

	case models.BackendNeo4j:
		ns, err := storage.NewNeo4jStore(ctx, cfg.Neo4j, cfg.PollInterval, a.Logger)
		if err != nil {
			return fmt.Errorf("connecting to neo4j: %w", err)
		}
		a.closers = append(a.closers, ns.Close)
		remote = ns

	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Breaker.Enabled {
		remote = storage.NewBreakerStore(remote, cfg.Breaker, a.Logger)
	}
	a.Store = remote
	return nil
}

// Close releases the sessions, the store connection, the event log and the
// log file. It is safe to call on a partially initialized App.
func (a *App) Close() error {
	var errs []error
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	a.closers = nil
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing event log: %w", err))
		}
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ResolveBasePath determines the directory holding the board configuration.
// It checks the TASKBOARD_HOME env var, then walks up from the current
// directory looking for .taskboard.yaml, then falls back to the current
// directory.
func ResolveBasePath() string {
	if home := os.Getenv("TASKBOARD_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	cwd := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}
