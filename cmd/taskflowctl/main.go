package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/historyexport"
	"github.com/taskflow-labs/taskflow/internal/platform/objectstore"
	"github.com/taskflow-labs/taskflow/internal/platform/postgres"
	"github.com/taskflow-labs/taskflow/internal/repo"
	pgrepo "github.com/taskflow-labs/taskflow/internal/repo/postgres"
	"github.com/taskflow-labs/taskflow/internal/service/workflows"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// app holds the collaborators commands open lazily, so tests can swap them.
type app struct {
	logger       *slog.Logger
	stdout       io.Writer
	openDB       func(ctx context.Context) (*sql.DB, error)
	openStore    func(ctx context.Context) (repo.Store, func(), error)
	openUploader func(ctx context.Context) (historyexport.Uploader, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		logger:       slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		stdout:       os.Stdout,
		openDB:       openDB,
		openUploader: openUploader,
	}
	a.openStore = func(ctx context.Context) (repo.Store, func(), error) {
		db, err := a.openDB(ctx)
		if err != nil {
			return nil, nil, err
		}
		return pgrepo.NewStore(db), func() { _ = db.Close() }, nil
	}

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitErr
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskflowctl",
		Short:         "Administer taskflow workflows and history",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.AddCommand(newMigrateCmd(a), newWorkflowCmd(a), newHistoryCmd(a))
	return root
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return codeError(1, "open database: %s", err)
			}
			defer func() { _ = db.Close() }()

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				return codeError(1, "migrate: %s", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(a.stdout, "schema up to date")
				return nil
			}
			for _, version := range applied {
				fmt.Fprintln(a.stdout, "applied", version)
			}
			return nil
		},
	}
}

func newWorkflowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and initialize board workflows",
	}

	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "List built-in workflow templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := workflows.Templates()
			if err != nil {
				return codeError(1, "load templates: %s", err)
			}
			for _, t := range templates {
				names := make([]string, 0, len(t.Statuses))
				for _, s := range t.Statuses {
					names = append(names, s.Name)
				}
				fmt.Fprintf(a.stdout, "%-8s %s [%s]\n", t.Name, t.Description, strings.Join(names, " "))
			}
			return nil
		},
	}

	var board, template, actor string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a board's workflow from a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(board) == "" || strings.TrimSpace(actor) == "" {
				return codeError(2, "--board and --actor are required")
			}
			store, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return codeError(1, "open store: %s", err)
			}
			defer closeStore()

			w, err := workflows.New(store, a.logger).InitFromTemplate(cmd.Context(), domain.Actor{Subject: actor}, board, template)
			if err != nil {
				return codeError(exitCodeFor(err), "init workflow: %s", err)
			}
			initial := make([]string, 0, 1)
			for _, s := range w.Initial() {
				initial = append(initial, s.Name)
			}
			fmt.Fprintf(a.stdout, "board %s: %d statuses, %d transitions from template %s (initial: %s)\n",
				w.BoardID, len(w.Statuses), len(w.Transitions), template, strings.Join(initial, ","))
			return nil
		},
	}
	initCmd.Flags().StringVar(&board, "board", "", "Board id")
	initCmd.Flags().StringVar(&template, "template", "basic", "Template name")
	initCmd.Flags().StringVar(&actor, "actor", "", "Subject performing the change; must be a board admin")

	cmd.AddCommand(templatesCmd, initCmd)
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Work with task status history",
	}

	var (
		board    string
		since    string
		toStdout bool
	)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a board's status history as NDJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(board) == "" {
				return codeError(2, "--board is required")
			}
			var from time.Time
			if strings.TrimSpace(since) != "" {
				parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(since))
				if err != nil {
					return codeError(2, "--since must be RFC3339: %s", err)
				}
				from = parsed
			}
			cfg, err := historyexport.ConfigFromEnv()
			if err != nil {
				return codeError(2, "invalid export config: %s", err)
			}
			if toStdout {
				cfg.Destination = historyexport.DestinationStdout
			}

			store, closeStore, err := a.openStore(cmd.Context())
			if err != nil {
				return codeError(1, "open store: %s", err)
			}
			defer closeStore()
			exporter := historyexport.New(store, a.logger, cfg)

			if strings.EqualFold(cfg.Destination, historyexport.DestinationStdout) {
				if _, err := exporter.WriteBoard(cmd.Context(), a.stdout, board, from); err != nil {
					return codeError(exitCodeFor(err), "export history: %s", err)
				}
				return nil
			}

			uploader, err := a.openUploader(cmd.Context())
			if err != nil {
				return codeError(1, "open object store: %s", err)
			}
			key, n, err := exporter.UploadBoard(cmd.Context(), uploader, board, from)
			if err != nil {
				return codeError(exitCodeFor(err), "export history: %s", err)
			}
			fmt.Fprintf(a.stdout, "exported %d entries to %s\n", n, key)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&board, "board", "", "Board id")
	exportCmd.Flags().StringVar(&since, "since", "", "Only export entries at or after this RFC3339 time")
	exportCmd.Flags().BoolVar(&toStdout, "stdout", false, "Write NDJSON to stdout instead of the object store")

	cmd.AddCommand(exportCmd)
	return cmd
}

// exitCodeFor reports caller mistakes with 2 and everything else with 1.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrPermissionDenied):
		return 2
	default:
		return 1
	}
}

func openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return postgres.Open(ctx, cfg)
}

func openUploader(ctx context.Context) (historyexport.Uploader, error) {
	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	store, err := objectstore.NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
