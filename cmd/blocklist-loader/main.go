package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"

	"github.com/haukened/blocklist-loader/internal/loader/common/clock"
	"github.com/haukened/blocklist-loader/internal/loader/common/log"
	"github.com/haukened/blocklist-loader/internal/loader/config"
	"github.com/haukened/blocklist-loader/internal/loader/domain"
	"github.com/haukened/blocklist-loader/internal/loader/gateways/api"
	"github.com/haukened/blocklist-loader/internal/loader/infra/metrics"
	"github.com/haukened/blocklist-loader/internal/loader/repos/manifest"
	"github.com/haukened/blocklist-loader/internal/loader/repos/parsers"
	"github.com/haukened/blocklist-loader/internal/loader/services/history"
	"github.com/haukened/blocklist-loader/internal/loader/services/syncer"
	"github.com/haukened/blocklist-loader/internal/loader/services/upload"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "blocklist-loader"
)

// Application holds all the components of one loader run.
type Application struct {
	config  *config.AppConfig
	logger  log.Logger
	clock   clock.Clock
	catalog syncer.Catalog
	syncer  *syncer.Syncer
	history *history.Driver
	metrics *metrics.Metrics
}

// cliOptions is what the command line selected.
type cliOptions struct {
	blocklist  string
	importPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, builds the application and executes one run. It returns
// the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, exited, err := parseArgs(args, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Argument error: %v\n", err)
		return 1
	}
	if exited {
		return 0
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger, err := log.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Logging configuration error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	logger.Info(map[string]any{
		"version":     version,
		"env":         cfg.Env,
		"log_level":   cfg.LogLevel,
		"api":         cfg.APIBaseURL,
		"parallelism": cfg.Parallelism,
		"max_retries": cfg.MaxRetries,
		"retry_delay": cfg.RetryDelay.String(),
	}, "Starting blocklist loader")

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Error(map[string]any{"error": err}, "Failed to build application")
		return 1
	}

	if err := app.Run(ctx, opts); err != nil {
		logger.Error(map[string]any{
			"error": err,
			"kind":  domain.KindOf(err).String(),
		}, "Run failed")
		return 1
	}
	logger.Info(nil, "Run completed")
	return 0
}

// parseArgs reads --blocklist, --import and --help. exited is true when
// --help or --version already printed and the run should stop.
func parseArgs(args []string, stdout, stderr io.Writer) (opts cliOptions, exited bool, err error) {
	app := kingpin.New(appName, "Synchronizes domain blocklists with the blocklist backend.")
	app.Version(version)
	app.UsageWriter(stdout)
	app.ErrorWriter(stderr)
	app.Terminate(func(int) { exited = true })
	app.Flag("blocklist", "Blocklist id to sync or to replay history into.").PlaceHolder("UUID").StringVar(&opts.blocklist)
	app.Flag("import", "Replay the historical manifest at this path into --blocklist.").PlaceHolder("PATH").StringVar(&opts.importPath)

	if _, err := app.Parse(args); err != nil {
		return cliOptions{}, false, err
	}
	return opts, exited, nil
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig, logger log.Logger) (*Application, error) {
	clk := &clock.RealClock{}

	client, err := api.NewClient(api.Options{
		BaseURL:   cfg.APIBaseURL,
		AuthToken: cfg.APIAuthToken,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	fetcher := parsers.NewFetcher(parsers.FetcherOptions{
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})

	coordinator := upload.NewCoordinator(upload.Options{
		Writer:      client,
		MaxInFlight: cfg.MaxInFlight,
		BatchSize:   cfg.BulkBatchSize,
		Logger:      logger,
	})

	m := metrics.New()
	s := syncer.NewSyncer(syncer.Options{
		Catalog:     client,
		Versions:    client,
		Fetcher:     fetcher,
		Uploader:    coordinator,
		Clock:       clk,
		Logger:      logger,
		Metrics:     m,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		Parallelism: cfg.Parallelism,
		Shuffle:     cfg.Shuffle,
	})

	return &Application{
		config:  cfg,
		logger:  logger,
		clock:   clk,
		catalog: client,
		syncer:  s,
		history: history.NewDriver(history.Options{Syncer: s, Logger: logger}),
		metrics: m,
	}, nil
}

// Run executes the mode selected on the command line: historical replay,
// a single list or the whole catalog.
func (app *Application) Run(ctx context.Context, opts cliOptions) error {
	defer app.writeMetrics()

	var id uuid.UUID
	if opts.blocklist != "" {
		parsed, err := uuid.Parse(opts.blocklist)
		if err != nil {
			return domain.ConfigError("invalid blocklist id %q: %v", opts.blocklist, err)
		}
		id = parsed
	}

	switch {
	case opts.importPath != "":
		if id == uuid.Nil {
			return domain.ConfigError("--import requires --blocklist")
		}
		return app.replay(ctx, id, opts.importPath)
	case id != uuid.Nil:
		_, err := app.syncer.SyncOne(ctx, id)
		return err
	default:
		report, err := app.syncer.SyncCatalog(ctx)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		if report.Err != nil {
			return fmt.Errorf("%d of %d blocklists failed: %w", report.Failed(), len(report.Results), report.Err)
		}
		return nil
	}
}

func (app *Application) replay(ctx context.Context, id uuid.UUID, path string) error {
	lists, err := manifest.Load(path)
	if err != nil {
		return err
	}
	b, err := app.catalog.GetBlocklist(ctx, id)
	if err != nil {
		return fmt.Errorf("load blocklist %s: %w", id, err)
	}
	app.logger.Info(map[string]any{
		"blocklist": b.Name,
		"manifest":  path,
		"entries":   len(lists),
	}, "Historical import")
	return app.history.Replay(ctx, b, lists)
}

func (app *Application) writeMetrics() {
	path := app.config.MetricsTextfile
	if path == "" {
		return
	}
	if err := app.metrics.WriteTextfile(path, app.clock.Now()); err != nil {
		app.logger.Warn(map[string]any{"path": path, "error": err}, "Failed to write metrics")
		return
	}
	app.logger.Debug(map[string]any{"path": path}, "metrics_written")
}
