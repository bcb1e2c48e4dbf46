package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trunov/thumbnailer/cmd/migrate"
	"github.com/trunov/thumbnailer/internal/config"
	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/ffmpeg"
	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/metrics"
	"github.com/trunov/thumbnailer/internal/pool"
	"github.com/trunov/thumbnailer/internal/provider"
	"github.com/trunov/thumbnailer/internal/queue"
	"github.com/trunov/thumbnailer/internal/r2"
	"github.com/trunov/thumbnailer/internal/redisholder"
	"github.com/trunov/thumbnailer/internal/redismanager"
	"github.com/trunov/thumbnailer/internal/repository/storage"
	"github.com/trunov/thumbnailer/internal/tracing"
	"github.com/trunov/thumbnailer/internal/transactor"
	"github.com/trunov/thumbnailer/internal/transport/handler"
	"github.com/trunov/thumbnailer/internal/transport/router"
	use_case "github.com/trunov/thumbnailer/internal/use-case"
	"github.com/trunov/thumbnailer/internal/worker"
)

var initTracing = tracing.Init

type Repository interface {
	queue.Store
	queue.Enqueuer
	Ping(ctx context.Context) error
	Close()
}

type App struct {
	cfg *config.Config
	log *slog.Logger

	HttpServer *http.Server
	repo       Repository
	pool       *pool.Pool
	controller *queue.Controller

	leases        *redismanager.Manager
	stopRedis     context.CancelFunc
	traceShutdown func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *App, err error) {
	traceShutdown, err := initTracing(ctx, tracing.Config{
		Endpoint:     cfg.Otel.ExporterEndpoint,
		ServiceName:  cfg.Otel.ServiceName,
		SamplingRate: cfg.Otel.SamplingRate,
	})
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			_ = traceShutdown(context.WithoutCancel(ctx))
		}
	}()

	if err := migrate.Migrate(cfg.Database.URL, cfg.Database.Name, migrate.Migrations); err != nil {
		return nil, fmt.Errorf("migrate queue schema: %w", err)
	}

	repo, err := storage.New(ctx, cfg.Database.URL, cfg.Database.Name, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			repo.Close()
		}
	}()

	blobs, err := r2.NewStorage(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dialCfg := transactor.DialConfig{
		URL:       cfg.Transactor.URL,
		Secret:    cfg.Transactor.Secret,
		ServiceID: cfg.Transactor.ServiceID,
		Timeout:   cfg.Transactor.DialTimeout,
	}
	conns := pool.New(func(ctx context.Context, workspace string) (transactor.Connection, error) {
		return transactor.Dial(ctx, dialCfg, workspace, log)
	}, cfg.Transactor.IdleTimeout, log, m)

	registry := provider.NewRegistry(log,
		provider.Default(ffmpeg.New(cfg.Thumbnail.FFmpegPath), cfg.Thumbnail.VideoFrameOffset, log)...)

	params := entities.Params{
		Width:  cfg.Thumbnail.Width,
		Height: cfg.Thumbnail.Height,
		Format: cfg.Thumbnail.Format,
	}
	w := worker.New(conns, registry, blobs, params, log)
	controller := queue.NewController(repo, w, cfg.Thumbnail.PollInterval, log, m)

	uc := use_case.New(queue.NewProducer(repo, log), w, repo)
	r := router.NewRouter(handler.New(uc, log), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	a := &App{
		cfg: cfg,
		log: log.With(logger.Scope("app")),
		HttpServer: &http.Server{
			Handler:      r,
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		repo:          repo,
		pool:          conns,
		controller:    controller,
		traceShutdown: traceShutdown,
	}

	if cfg.Redis.Enabled() {
		redisCtx, cancel := context.WithCancel(context.Background())
		holder, err := redisholder.Build(redisCtx, &cfg.Redis, log)
		if err != nil {
			cancel()
			return nil, err
		}
		a.stopRedis = cancel
		a.leases = redismanager.NewManager(holder, log)
	}

	return a, nil
}

// Run consumes the queue and serves the ops endpoints until SIGINT/SIGTERM,
// then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lost <-chan struct{}
	var lease *redismanager.Lease
	if a.leases != nil {
		l, err := a.leases.Acquire(ctx, a.cfg.Redis.LeaseKey, a.cfg.Redis.LeaseTTL)
		if err != nil {
			return errors.Join(fmt.Errorf("refusing to consume the queue: %w", err), a.shutdown(nil))
		}
		lease, lost = l, l.Lost()
	} else {
		a.log.Warn("no redis configured: run exactly one instance against this queue")
	}

	// jobs outlive the signal so an in-flight job completes
	a.controller.Start(context.WithoutCancel(ctx))

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info("starting ops server", slog.String("addr", a.HttpServer.Addr))
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case <-lost:
		runErr = redismanager.ErrLeaseHeld
	case err := <-serverErr:
		runErr = fmt.Errorf("ops server: %w", err)
	}

	return errors.Join(runErr, a.shutdown(lease))
}

// shutdown runs every step even when an earlier one fails.
func (a *App) shutdown(lease *redismanager.Lease) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.log.Error("shutdown step failed", slog.String("step", name), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("controller", func() error { a.controller.Close(); return nil })
	step("ops server", func() error { return a.HttpServer.Shutdown(ctx) })
	step("connection pool", a.pool.CloseAll)
	step("queue store", func() error { a.repo.Close(); return nil })
	if lease != nil {
		step("consumer lease", func() error { return lease.Release(ctx) })
	}
	if a.stopRedis != nil {
		a.stopRedis()
	}
	step("tracing", func() error { return a.traceShutdown(ctx) })

	a.log.Info("shutdown complete", slog.Duration("took", time.Since(start)))
	return errors.Join(errs...)
}
