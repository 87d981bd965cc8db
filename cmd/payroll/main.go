// Command payroll computes a month's federation and instructor payments from the command line.
//
//	payroll -month 2025-01 [-recalculate] [-out ./statements -format pdf]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/repository"
	"github.com/noah-isme/dojo-admin-api/internal/service"
	"github.com/noah-isme/dojo-admin-api/pkg/cache"
	"github.com/noah-isme/dojo-admin-api/pkg/config"
	"github.com/noah-isme/dojo-admin-api/pkg/database"
	"github.com/noah-isme/dojo-admin-api/pkg/logger"
	"github.com/noah-isme/dojo-admin-api/pkg/storage"
)

type options struct {
	Month       string
	Recalculate bool
	OutDir      string
	Format      dto.ExportFormat
}

type payrollRunner interface {
	Run(ctx context.Context, req dto.RunRequest) (*dto.RunReport, error)
}

type statementExporter interface {
	Export(ctx context.Context, month string, format dto.ExportFormat) (*dto.ExportResult, error)
}

type statementStore interface {
	Save(filename string, data []byte) (string, error)
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("payroll", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	var format string
	fs.StringVar(&opts.Month, "month", "", "month to compute (YYYY-MM)")
	fs.BoolVar(&opts.Recalculate, "recalculate", false, "delete existing records, including reconciled ones, before computing")
	fs.StringVar(&opts.OutDir, "out", "", "directory to write the monthly statement to")
	fs.StringVar(&format, "format", string(dto.ExportCSV), "statement format: csv or pdf")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.Month == "" {
		return options{}, fmt.Errorf("-month is required")
	}
	opts.Format = dto.ExportFormat(format)
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cached summaries will expire on their own", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Payroll.SummaryCacheTTL, logr)

	payrollRepo := repository.NewPayrollRepository(db)
	payrollSvc := service.NewPayrollService(payrollRepo, cacheSvc, metrics, logr)
	reportSvc := service.NewPayrollReportService(payrollRepo, nil, 0, cfg.Payroll.StatementTitle, logr)

	var store statementStore
	if opts.OutDir != "" {
		local, err := storage.NewLocalStorage(opts.OutDir)
		if err != nil {
			logr.Fatal("failed to prepare statement directory", zap.Error(err))
		}
		store = local
	}

	code, err := execute(ctx, opts, payrollSvc, reportSvc, store, os.Stdout, logr)
	if err != nil {
		logr.Error("payroll run failed", zap.Error(err))
	}
	logr.Sync() //nolint:errcheck
	os.Exit(code)
}

// cliUserAgent identifies batch runs in audit logs. The CLI has no user account, so runs
// carry no actor id.
const cliUserAgent = "payroll-cli"

// execute runs the payroll, prints the report and optionally stores the statement.
// The exit code is 1 when the month is invalid or any category failed.
func execute(ctx context.Context, opts options, runner payrollRunner, exporter statementExporter, store statementStore, stdout io.Writer, logr *zap.Logger) (int, error) {
	report, err := runner.Run(ctx, dto.RunRequest{
		Month:       opts.Month,
		Recalculate: opts.Recalculate,
		UserAgent:   cliUserAgent,
	})
	if err != nil {
		return 1, err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return 1, fmt.Errorf("write report: %w", err)
	}

	if report.Blocked() {
		logr.Warn("some categories were blocked by existing reconciliations; rerun with -recalculate to override",
			zap.String("month", report.Month))
	}
	if report.Failed() {
		return 1, fmt.Errorf("%d categories failed", report.Counts()[dto.OutcomeFailed])
	}

	if store == nil {
		return 0, nil
	}
	statement, err := exporter.Export(ctx, report.Month, opts.Format)
	if err != nil {
		return 1, err
	}
	path, err := store.Save(statement.Filename, statement.Body)
	if err != nil {
		return 1, err
	}
	logr.Info("statement written", zap.String("path", path))
	return 0, nil
}
