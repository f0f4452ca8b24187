package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskflow-labs/taskflow/internal/notify"
	"github.com/taskflow-labs/taskflow/internal/platform/auditlog"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/platform/env"
	"github.com/taskflow-labs/taskflow/internal/platform/httpserver"
	"github.com/taskflow-labs/taskflow/internal/platform/locks"
	"github.com/taskflow-labs/taskflow/internal/platform/postgres"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/repo/memstore"
	pgrepo "github.com/taskflow-labs/taskflow/internal/repo/postgres"
	"github.com/taskflow-labs/taskflow/internal/service/batch"
	"github.com/taskflow-labs/taskflow/internal/service/ordering"
	"github.com/taskflow-labs/taskflow/internal/service/statemachine"
	"github.com/taskflow-labs/taskflow/internal/service/workflows"
)

const service = "tasks"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverCfg, err := httpserver.ConfigFromEnv(service)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	driver, err := env.OneOf("STORE_DRIVER", "postgres", "postgres", "memory")
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	var (
		store  repo.Store
		checks []httpserver.ReadinessCheck
		audit  auth.AuditFunc
	)
	switch driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store = memstore.New()
	default:
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		store = pgrepo.NewStore(db)
		checks = append(checks, postgresCheck(db))
		audit = auditlog.AuthDenyRecorder(db, service)
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authenticator, err := auth.NewAuthenticator(ctx, authCfg)
	if err != nil {
		logger.Error("auth unavailable", "error", err)
		os.Exit(1)
	}

	lockCfg, err := locks.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid lock config", "error", err)
		os.Exit(2)
	}
	locker, closeLocker, err := locks.New(ctx, logger, lockCfg)
	if err != nil {
		logger.Error("lock backend unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeLocker() }()

	notifyCfg, err := notify.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid notify config", "error", err)
		os.Exit(2)
	}
	policy, err := statemachine.PolicyFromEnv()
	if err != nil {
		logger.Error("invalid workflow policy", "error", err)
		os.Exit(2)
	}
	batchCfg, err := batch.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid batch config", "error", err)
		os.Exit(2)
	}

	ord := ordering.New(store, locker, logger)
	engine := statemachine.New(store, logger, statemachine.Options{
		Policy:   policy,
		Mover:    ord,
		Notifier: notify.New(logger, notifyCfg),
	})
	api := newTasksAPI(logger, workflows.New(store, logger), engine, ord, batch.New(store, engine, ord, logger, batchCfg))

	handler := newHandler(logger, api, authenticator, audit, checks...)
	if err := httpserver.Run(ctx, logger, serverCfg, handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newHandler(logger *slog.Logger, api *tasksAPI, authenticator auth.Authenticator, audit auth.AuditFunc, checks ...httpserver.ReadinessCheck) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(service))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(service, checks...))
	api.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz"},
		Audit:         audit,
	}.Wrap(mux)
	return httpserver.Wrap(logger, service, handler)
}

func postgresCheck(db *sql.DB) httpserver.ReadinessCheck {
	return httpserver.ReadinessCheck{
		Name:  "postgres",
		Check: httpserver.WithTimeout(750*time.Millisecond, db.PingContext),
	}
}
