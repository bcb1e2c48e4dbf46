package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/metrics"
	"github.com/trunov/thumbnailer/internal/tracing"
)

// DefaultPollInterval is the pause after an empty poll.
const DefaultPollInterval = 500 * time.Millisecond

type state int

const (
	stopped state = iota
	running
	stopping
)

// Controller drains the request queue one job at a time. Every dequeued
// request is deleted after processing, whatever the outcome: jobs are never
// retried.
type Controller struct {
	store    Store
	proc     Processor
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	state  state
	stopCh chan struct{}
	done   chan struct{}
}

func NewController(store Store, proc Processor, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *Controller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Controller{
		store:    store,
		proc:     proc,
		interval: interval,
		log:      log.With(logger.Scope("controller")),
		metrics:  m,
	}
}

// Start launches the poll loop. Calling it while the loop runs is a no-op;
// while a Close is in progress it waits for the old loop to exit first.
// ctx is handed to every job; cancelling it does not stop the loop, Close does.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.state == stopping {
		done := c.done
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	if c.state == running {
		return
	}
	c.state = running
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	c.log.Info("thumbnail controller started", slog.Duration("poll_interval", c.interval))
	go c.loop(ctx, c.stopCh, c.done)
}

// Close asks the loop to stop and waits until the current iteration is over.
func (c *Controller) Close() {
	c.mu.Lock()
	switch c.state {
	case stopped:
		c.mu.Unlock()
		return
	case running:
		c.state = stopping
		close(c.stopCh)
	}
	done := c.done
	c.mu.Unlock()

	<-done
}

// Running reports whether the poll loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == running
}

func (c *Controller) loop(ctx context.Context, stop <-chan struct{}, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.state = stopped
		c.mu.Unlock()
		close(done)
		c.log.Info("thumbnail controller stopped")
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if c.iterate(ctx) {
			continue
		}

		t := time.NewTimer(c.interval)
		select {
		case <-stop:
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// iterate processes at most one request and reports whether one was found.
func (c *Controller) iterate(ctx context.Context) bool {
	req, err := c.store.Next(ctx)
	if err != nil {
		c.log.Error("failed to fetch thumbnail request", logger.Error(err))
		return false
	}
	if req == nil {
		return false
	}

	start := time.Now()
	outcome := c.run(ctx, *req)
	c.metrics.Observe(outcome, time.Since(start).Seconds())

	if err := c.store.Delete(ctx, req.ID); err != nil {
		c.log.Error("failed to delete thumbnail request",
			slog.Int64("request_id", req.ID),
			logger.Error(err))
	}
	return true
}

func (c *Controller) run(ctx context.Context, req entities.ThumbnailRequest) (outcome string) {
	ctx, span := tracing.Start(ctx, "process-thumbnail",
		attribute.String("workspace", req.Workspace),
		attribute.String("object_class", req.ObjectClass),
		attribute.String("object_id", req.ObjectID),
	)
	defer span.End()

	handled, err := c.process(ctx, req)
	switch {
	case err != nil:
		span.RecordError(err)
		c.fail(req, err)
		return metrics.OutcomeFailed
	case handled:
		return metrics.OutcomeHandled
	default:
		return metrics.OutcomeSkipped
	}
}

func (c *Controller) process(ctx context.Context, req entities.ThumbnailRequest) (handled bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return c.proc.Process(ctx, req)
}

func (c *Controller) fail(req entities.ThumbnailRequest, err error) {
	c.log.Error("failed to generate thumbnail",
		slog.String("workspace", req.Workspace),
		slog.String("object_class", req.ObjectClass),
		slog.String("object_id", req.ObjectID),
		logger.Error(err))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("workspace", req.Workspace)
		scope.SetTag("object_class", req.ObjectClass)
		scope.SetTag("object_id", req.ObjectID)
		sentry.CaptureException(err)
	})
}
