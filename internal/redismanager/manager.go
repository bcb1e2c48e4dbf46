// Package redismanager guards the request queue with an exclusive consumer
// lease, so a second instance refuses to start instead of racing the first.
package redismanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/trunov/thumbnailer/internal/logger"
)

var (
	ErrLeaseHeld = errors.New("consumer lease is held by another instance")
	ErrLeaseTTL  = errors.New("consumer lease ttl too short")
)

// MinTTL keeps the refresh period (ttl/3) at a second or more.
const MinTTL = 3 * time.Second

// Client yields the current Redis client; redisholder.Holder implements it.
type Client interface {
	Get() redis.UniversalClient
}

// refresh and release only touch the key while it still carries our token.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type Manager struct {
	client Client
	log    *slog.Logger
}

func NewManager(client Client, log *slog.Logger) *Manager {
	return &Manager{client: client, log: log.With(logger.Scope("lease"))}
}

// Lease is held until Release is called or a refresh finds it taken over.
type Lease struct {
	m     *Manager
	key   string
	token string
	ttl   time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
	lost chan struct{}
}

// Acquire takes key for ttl and keeps extending it at a third of ttl.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl < MinTTL {
		return nil, fmt.Errorf("%w: %s, need at least %s", ErrLeaseTTL, ttl, MinTTL)
	}

	token := uuid.NewString()

	ok, err := m.client.Get().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLeaseHeld)
	}

	l := &Lease{
		m:     m,
		key:   key,
		token: token,
		ttl:   ttl,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
	go l.refreshLoop()

	m.log.Info("consumer lease acquired", slog.String("key", key), slog.Duration("ttl", ttl))
	return l, nil
}

// Lost is closed when the lease expired or was taken by someone else.
func (l *Lease) Lost() <-chan struct{} {
	return l.lost
}

func (l *Lease) refreshLoop() {
	defer close(l.done)

	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
		n, err := refreshScript.Run(ctx, l.m.client.Get(), []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
		cancel()

		switch {
		case err != nil:
			l.m.log.Warn("failed to refresh consumer lease", slog.String("key", l.key), logger.Error(err))
		case n == 0:
			l.m.log.Error("consumer lease lost", slog.String("key", l.key))
			close(l.lost)
			return
		}
	}
}

// Release stops refreshing and deletes the key if it is still ours.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		<-l.done

		err = releaseScript.Run(ctx, l.m.client.Get(), []string{l.key}, l.token).Err()
		if err != nil {
			err = fmt.Errorf("release lease %s: %w", l.key, err)
			return
		}
		l.m.log.Info("consumer lease released", slog.String("key", l.key))
	})
	return err
}
