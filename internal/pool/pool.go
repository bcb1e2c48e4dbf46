// Package pool keeps one transactor connection per workspace and closes
// connections that stay unused for the idle window.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/metrics"
	"github.com/trunov/thumbnailer/internal/transactor"
)

// DefaultIdleTimeout is how long an unused workspace connection stays open.
const DefaultIdleTimeout = 10 * time.Minute

var ErrPoolClosed = errors.New("connection pool closed")

// DialFunc opens a new connection to workspace.
type DialFunc func(ctx context.Context, workspace string) (transactor.Connection, error)

type entry struct {
	conn       transactor.Connection
	timer      *time.Timer
	gen        uint64
	lastUsedAt time.Time
}

// Pool is safe for concurrent use. Creation is serialised per workspace;
// eviction and reuse of one workspace entry happen under the same lock, so a
// connection handed out by Get is never one that is being closed.
type Pool struct {
	dial    DialFunc
	idle    time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

func New(dial DialFunc, idle time.Duration, log *slog.Logger, m *metrics.Metrics) *Pool {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Pool{
		dial:    dial,
		idle:    idle,
		log:     log.With(logger.Scope("pool")),
		metrics: m,
		entries: map[string]*entry{},
	}
}

// Get returns the cached connection for workspace, dialing one if needed, and
// restarts its idle timer.
func (p *Pool) Get(ctx context.Context, workspace string) (transactor.Connection, error) {
	if conn, ok, err := p.touch(workspace); err != nil || ok {
		return conn, err
	}

	v, err, _ := p.group.Do(workspace, func() (any, error) {
		// another flight may have finished between touch and Do
		if conn, ok, err := p.touch(workspace); err != nil || ok {
			return conn, err
		}

		conn, err := p.dial(ctx, workspace)
		if err != nil {
			return nil, fmt.Errorf("connect workspace %s: %w", workspace, err)
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = conn.Close()
			return nil, ErrPoolClosed
		}
		e := &entry{conn: conn}
		p.entries[workspace] = e
		p.arm(workspace, e)
		p.mu.Unlock()

		p.metrics.ConnectionOpened()
		p.log.Info("workspace connection opened", slog.String("workspace", workspace))
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(transactor.Connection), nil
}

func (p *Pool) touch(workspace string) (transactor.Connection, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false, ErrPoolClosed
	}
	e, ok := p.entries[workspace]
	if !ok {
		return nil, false, nil
	}
	p.arm(workspace, e)
	return e.conn, true, nil
}

// arm restarts the idle timer of e. Callers hold p.mu.
func (p *Pool) arm(workspace string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.lastUsedAt = time.Now()
	e.timer = time.AfterFunc(p.idle, func() { p.expire(workspace, e, gen) })
}

// expire evicts e unless it was reused or replaced after the timer was armed.
func (p *Pool) expire(workspace string, e *entry, gen uint64) {
	p.mu.Lock()
	if p.entries[workspace] != e || e.gen != gen {
		p.mu.Unlock()
		return
	}
	delete(p.entries, workspace)
	idleFor := time.Since(e.lastUsedAt)
	p.mu.Unlock()

	p.log.Info("closing idle workspace connection",
		slog.String("workspace", workspace),
		slog.Duration("idle", idleFor))
	p.release(workspace, e.conn)
}

func (p *Pool) release(workspace string, conn transactor.Connection) error {
	p.metrics.ConnectionClosed()
	if err := conn.Close(); err != nil {
		p.log.Warn("failed to close workspace connection",
			slog.String("workspace", workspace),
			logger.Error(err))
		return err
	}
	return nil
}

// Close drops and closes the connection of one workspace.
func (p *Pool) Close(workspace string) error {
	p.mu.Lock()
	e, ok := p.entries[workspace]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.entries, workspace)
	e.timer.Stop()
	p.mu.Unlock()

	return p.release(workspace, e.conn)
}

// CloseAll stops every timer and closes every connection. Later Gets fail
// with ErrPoolClosed.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	p.closed = true
	entries := p.entries
	p.entries = map[string]*entry{}
	for _, e := range entries {
		e.timer.Stop()
	}
	p.mu.Unlock()

	var errs []error
	for workspace, e := range entries {
		if err := p.release(workspace, e.conn); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", workspace, err))
		}
	}
	if len(entries) > 0 {
		p.log.Info("workspace connections closed", slog.Int("count", len(entries)))
	}
	return errors.Join(errs...)
}

// Len is the number of cached connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
