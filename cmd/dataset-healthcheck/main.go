package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rastion/rastion-datasets/internal/repository"
	"github.com/rastion/rastion-datasets/internal/service"
	"github.com/rastion/rastion-datasets/pkg/config"
	"github.com/rastion/rastion-datasets/pkg/database"
	"github.com/rastion/rastion-datasets/pkg/logger"
	"github.com/rastion/rastion-datasets/pkg/storage"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	reportFormat    string
	reportOut       string
	failOnUnhealthy bool
	concurrency     int
)

var rootCmd = &cobra.Command{
	Use:          "dataset-healthcheck",
	Short:        "Reconcile dataset rows with stored blobs",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check every dataset blob and write a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := setup(ctx)
		if err != nil {
			return err
		}
		defer env.close()

		blobs, err := storage.New(ctx, env.cfg.Storage)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}

		checker := service.NewHealthCheckService(repository.NewDatasetRepository(env.db), blobs, nil, env.logger, concurrency)
		report, err := checker.Run(ctx)
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		data, err := checker.RenderReport(report, reportFormat)
		if err != nil {
			return err
		}

		if reportOut == "" || reportOut == "-" {
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
		} else {
			if err := os.WriteFile(reportOut, data, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", reportOut)
		}

		if failOnUnhealthy && (report.Unhealthy > 0 || len(report.Orphans) > 0) {
			return fmt.Errorf("%d unhealthy datasets, %d orphan blobs", report.Unhealthy, len(report.Orphans))
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		return database.RunMigrations(env.db.DB, env.logger)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied and latest migration versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		current, latest, err := database.MigrationStatus(env.db.DB)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Current: %d\n", current)
		fmt.Fprintf(out, "Latest:  %d\n", latest)
		if current < latest {
			fmt.Fprintf(out, "Pending: %d\n", latest-current)
		}
		return nil
	},
}

type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func (e *environment) close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}

func setup(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &environment{cfg: cfg, logger: logr, db: db}, nil
}

func init() {
	runCmd.Flags().StringVarP(&reportFormat, "format", "f", service.ReportFormatJSON, "report format: json, csv or pdf")
	runCmd.Flags().StringVarP(&reportOut, "out", "o", "", "write the report to this file instead of stdout")
	runCmd.Flags().BoolVar(&failOnUnhealthy, "fail-on-unhealthy", false, "exit non-zero when any dataset is unhealthy or a blob is orphaned")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 4, "datasets checked in parallel")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
}
