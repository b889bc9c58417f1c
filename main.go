package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource"
	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource/mssql"
	"github.com/lumina-bi/lumina-engine/pkg/adapters/datasource/postgres"
	"github.com/lumina-bi/lumina-engine/pkg/config"
	"github.com/lumina-bi/lumina-engine/pkg/discovery"
	"github.com/lumina-bi/lumina-engine/pkg/llm"
	"github.com/lumina-bi/lumina-engine/pkg/logging"
	"github.com/lumina-bi/lumina-engine/pkg/models"
	"github.com/lumina-bi/lumina-engine/pkg/profiler"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lumina-engine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Datasource.DSN == "" {
		return fmt.Errorf("no datasource configured; set DATASOURCE_DSN or datasource.dsn in config.yaml")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting discovery run",
		zap.String("version", Version),
		zap.String("run_id", uuid.NewString()),
		zap.String("dialect", cfg.Datasource.Dialect),
		zap.String("schema", cfg.Datasource.Schema),
		zap.String("dsn", logging.SanitizeDSN(cfg.Datasource.DSN)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	executor, provider, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer executor.Close()

	var labeler discovery.ProcessLabeler
	if cfg.AI.IsAvailable() {
		labeler = llm.NewLabeler(llm.NewClient(cfg.AI, logger), logger)
	} else {
		logger.Info("no labeling endpoint configured, keeping derived names")
	}

	diskCache, err := profiler.NewDiskCache(cfg.Profiler.CacheDir)
	if err != nil {
		logger.Warn("profile disk cache unavailable", zap.Error(err))
		diskCache = nil
	}
	batchProfiler := profiler.NewBatchProfiler(executor, cfg.Profiler, diskCache,
		databaseName(cfg.Datasource.DSN), logger)

	svc := discovery.NewService(cfg, provider, executor, labeler, batchProfiler,
		discovery.NewResultCache(cfg.Discovery.CacheTTL), logger)

	// The result cache is keyed by connection identity, which must be stable
	// across runs; the credential-free DSN plus schema is exactly that.
	connectionID := logging.SanitizeDSN(cfg.Datasource.DSN) + "#" + cfg.Datasource.Schema
	processes, err := svc.Discover(ctx, connectionID, cfg.Datasource.Schema)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	return out.Encode(processes)
}

// databaseName extracts the database name from a DSN for keying the profile
// cache: the URL path segment, or the dbname/database keyword, else a fixed
// fallback.
func databaseName(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Path != "" && u.Path != "/" {
		return strings.TrimPrefix(u.Path, "/")
	}
	for _, field := range strings.FieldsFunc(dsn, func(r rune) bool { return r == ';' || r == ' ' }) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "dbname", "database":
			return v
		}
	}
	return "default"
}

// connect builds the executor and schema provider for the configured dialect.
func connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datasource.QueryExecutor, datasource.SchemaProvider, error) {
	switch cfg.Datasource.Dialect {
	case models.DialectPostgres:
		pool, err := pgxpool.New(ctx, cfg.Datasource.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return postgres.NewExecutorFromPool(pool), postgres.NewProvider(pool, logger), nil
	case models.DialectMSSQL:
		executor, err := mssql.NewExecutor(cfg.Datasource.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to sql server: %w", err)
		}
		return executor, mssql.NewProvider(executor, logger), nil
	default:
		return nil, nil, fmt.Errorf("unsupported dialect %q", cfg.Datasource.Dialect)
	}
}
