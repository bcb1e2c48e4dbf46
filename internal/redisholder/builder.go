package redisholder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trunov/thumbnailer/internal/config"
	"github.com/trunov/thumbnailer/internal/logger"
)

// Build connects to the configured Redis, preferring cluster mode when more
// than one address is given, and keeps the connection healthy in the
// background until ctx is cancelled.
func Build(ctx context.Context, cfg *config.RedisConfig, log *slog.Logger) (*Holder, error) {
	log = log.With(logger.Scope("redis"))

	cl, err := connect(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	h := NewHolder(cl)
	go healthLoop(ctx, h, cfg, log)

	return h, nil
}

func connect(ctx context.Context, cfg *config.RedisConfig, log *slog.Logger) (redis.UniversalClient, error) {
	if len(cfg.Addrs) > 1 {
		cl, err := newClusterClient(ctx, cfg)
		if err == nil {
			return cl, nil
		}
		log.Warn("cluster client failed, using single-node client", logger.Error(err))
	}
	return newClient(ctx, cfg)
}

func healthLoop(ctx context.Context, h *Holder, cfg *config.RedisConfig, log *slog.Logger) {
	interval := cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log.Debug("health loop started", slog.Duration("interval", interval))

	ping := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.Get().Ping(pingCtx).Err()
		cancel()

		if err == nil || ctx.Err() != nil {
			return
		}
		log.Warn("ping failed, reconnecting", logger.Error(err))

		newCl, err := connect(ctx, cfg, log)
		if err != nil {
			log.Error("reconnect failed", logger.Error(err))
			return
		}

		if old := h.swap(newCl); old != nil {
			_ = old.Close()
		}
		log.Info("reconnected")
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			log.Debug("health loop stopped")
			return
		case <-t.C:
			ping()
		}
	}
}

func newClusterClient(ctx context.Context, cfg *config.RedisConfig) (*redis.ClusterClient, error) {
	cl := redis.NewClusterClient(&redis.ClusterOptions{
		RouteByLatency: true,
		Password:       cfg.Password,
		Addrs:          cfg.Addrs,
		DialTimeout:    cfg.DialTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PoolSize:       4,
		MaxRetries:     3,
	})

	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis cluster: %w", err)
	}
	return cl, nil
}

func newClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	stickyErr := errors.New("no redis addresses configured")

	for _, addr := range cfg.Addrs {
		cl := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DatabaseID,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})

		if err := cl.Ping(ctx).Err(); err != nil {
			_ = cl.Close()
			stickyErr = fmt.Errorf("error pinging redis server %s: %w", addr, err)
			continue
		}
		return cl, nil
	}

	return nil, stickyErr
}
