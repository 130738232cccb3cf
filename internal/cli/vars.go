package cli

import (
	"github.com/sirupsen/logrus"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	Sessions    *core.SessionManager
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
	Logger      logrus.FieldLogger

	// DefaultProject is used when --project is not given.
	DefaultProject = "default"
	// HTTPAddr is the default listen address of `taskboard serve`.
	HTTPAddr = "127.0.0.1:8080"
)
