package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"PageVault/internal/api"
	"PageVault/internal/assets"
	"PageVault/internal/config"
	"PageVault/internal/infrastructure/catalog"
	"PageVault/internal/infrastructure/events"
	"PageVault/internal/infrastructure/fetch"
	"PageVault/internal/infrastructure/lock"
	"PageVault/internal/infrastructure/scheduler"
	"PageVault/internal/logging"
	"PageVault/internal/normalizer"
	"PageVault/internal/ports"
	"PageVault/internal/queue"
	"PageVault/internal/source"
	"PageVault/internal/storage"
	"PageVault/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	ingestion *usecase.Ingestion
	imports   *queue.Queue
	server    *http.Server
	timer     *scheduler.Timer
	closers   []func()
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	app := &Application{cfg: cfg, logger: baseLogger}
	dataDir := cfg.Storage.DataDir

	media, err := storage.NewMediaCache(filepath.Join(dataDir, "media"))
	if err != nil {
		return nil, fmt.Errorf("media cache: %w", err)
	}

	cat, err := app.buildCatalog()
	if err != nil {
		return nil, err
	}

	bus, err := app.buildEventBus()
	if err != nil {
		return nil, err
	}

	engine, err := storage.NewEngine(cat, bus, dataDir, baseLogger.With("component", "engine"))
	if err != nil {
		return nil, fmt.Errorf("storage engine: %w", err)
	}

	jobStore, err := queue.NewFileJobStore(filepath.Join(dataDir, "imports"))
	if err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}

	fetcher := fetch.NewClient(cfg.Fetch.Timeout(), cfg.Fetch.UserAgent)

	// The timer's handler is bound late: ingestion needs the queue, the
	// queue needs the scheduler.
	app.timer = scheduler.NewTimer(func(ctx context.Context, task ports.Task) {
		app.ingestion.HandleTask(ctx, task)
	})

	app.imports = queue.NewQueue(cat, jobStore, app.timer,
		cfg.Imports.BatchSize, cfg.Imports.Stagger(), cfg.Imports.DispatchInterval(),
		baseLogger.With("component", "imports"))

	app.ingestion = usecase.NewIngestion(usecase.IngestDeps{
		Resolver:   source.NewResolver(fetcher, baseLogger.With("component", "resolver")),
		Fetcher:    fetcher,
		Normalizer: normalizer.New(baseLogger.With("component", "normalizer")),
		Localizer:  assets.NewLocalizer(fetcher, media, cfg.Fetch.ImageTimeout(), baseLogger.With("component", "assets")),
		Engine:     engine,
		Locks:      lock.NewMemoryLock(),
		Queue:      app.imports,
		LockTTL:    cfg.Ingest.LockTTL(),
		Logger:     baseLogger.With("component", "ingest"),
	})

	app.server = &http.Server{
		Addr:    cfg.API.Addr,
		Handler: api.NewServer(app.ingestion, app.imports, media).Handler(),
	}

	return app, nil
}

func (a *Application) buildCatalog() (ports.Catalog, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database DSN configured, using in-memory catalog")
		return catalog.NewMemory(), nil
	}
	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	return catalog.NewPostgresRepository(db), nil
}

func (a *Application) buildEventBus() (ports.EventBus, error) {
	if a.cfg.Events.NatsURL == "" {
		a.logger.Info("no NATS URL configured, using in-process event bus")
		return events.NewMemoryBus(), nil
	}
	bus, err := events.NewNatsBus(a.cfg.Events.NatsURL, a.cfg.Events.Subject)
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}
	a.closers = append(a.closers, bus.Close)
	return bus, nil
}

// Run serves the API and the import watchdog until ctx is canceled.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go a.runWatchdog(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.shutdown()
		return err
	}

	a.shutdown()
	return nil
}

func (a *Application) runWatchdog(ctx context.Context) {
	interval := a.cfg.Imports.WatchdogInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.imports.Watchdog(ctx); err != nil {
				a.logger.Error("watchdog run failed", "error", err)
			}
		}
	}
}

func (a *Application) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.server.Shutdown(shutdownCtx)
	a.timer.Stop()
	for _, closeFn := range a.closers {
		closeFn()
	}
}
