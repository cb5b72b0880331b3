package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/okian/catador/internal/adapters/http/api"
	"github.com/okian/catador/internal/adapters/http/swagger"
	"github.com/okian/catador/internal/adapters/http/ws"
	"github.com/okian/catador/internal/adapters/mq/broadcast"
	"github.com/okian/catador/internal/adapters/mq/natsbus"
	"github.com/okian/catador/internal/adapters/repository"
	app "github.com/okian/catador/internal/app"
	"github.com/okian/catador/internal/config"
	"github.com/okian/catador/internal/domain/timer"
	"github.com/okian/catador/pkg/logger"
	"github.com/okian/catador/pkg/metrics"
)

// HTTP server timeout constants.
const (
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}
	log := logger.Get()
	metrics.Init(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsBuckets),
	)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	bus, closeBus, err := openBus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start timer bus: %w", err)
	}
	defer closeBus()

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithBroadcaster(bus),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithAutosaveRetries(cfg.AutosaveRetries),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithResyncInterval(cfg.TimerResync),
		app.WithMaxTimerDuration(cfg.TimerMax),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startServiceMetricsUpdater(ctx, svc)

	srv := newHTTPServer(cfg, svc)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore returns the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryStore(), nil
	default:
		return repository.OpenSQL(ctx, cfg.StoreDriver, cfg.StoreDSN)
	}
}

// openBus returns the timer fan-out. With a NATS url the local hub is
// bridged to every other instance.
func openBus(ctx context.Context, cfg *config.Config) (timer.Broadcaster, func(), error) {
	hub := broadcast.NewHub()
	if cfg.NATSURL == "" {
		return hub, func() {}, nil
	}
	conn, err := natsbus.Connect(cfg.NATSURL, logger.Named("natsbus"))
	if err != nil {
		return nil, nil, err
	}
	bus := natsbus.New(conn, hub, natsbus.WithSubjectPrefix(cfg.NATSSubjectPrefix))
	if err := bus.Start(); err != nil {
		conn.Close()
		return nil, nil, err
	}
	logger.Get().Info(ctx, "timer fan-out over nats", logger.String("url", cfg.NATSURL))
	return bus, func() {
		_ = bus.Close()
		_ = conn.Drain()
	}, nil
}

// newHTTPServer wires the API, the timer stream and the API docs.
func newHTTPServer(cfg *config.Config, svc *app.Service) *http.Server {
	mux := http.NewServeMux()
	stream := ws.NewHandler(svc)
	apiServer := api.NewServer(svc,
		api.WithCORSOrigins(cfg.CORSOrigins...),
		api.WithStat("timerStreams", func() any { return stream.Active() }),
	)
	apiServer.Register(mux)
	mux.Handle("GET /events/{eventID}/timer/stream", stream)
	swagger.Register(mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(mux),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the queue gauges as a side effect.
			_ = svc.GetStats()
		}
	}
}
