package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/logger"
)

// Enqueuer inserts req unless a pending request already tracks the same
// thumbnail document in the same workspace.
type Enqueuer interface {
	Enqueue(ctx context.Context, req entities.ThumbnailRequest) (bool, error)
}

type Producer struct {
	store Enqueuer
	log   *slog.Logger
}

func NewProducer(store Enqueuer, log *slog.Logger) *Producer {
	return &Producer{store: store, log: log.With(logger.Scope("producer"))}
}

// Enqueue persists a request for the controller. It reports false when an
// equivalent request was already pending.
func (p *Producer) Enqueue(ctx context.Context, req entities.ThumbnailRequest) (bool, error) {
	inserted, err := p.store.Enqueue(ctx, req)
	if err != nil {
		return false, fmt.Errorf("enqueue thumbnail %s: %w", req.ThumbnailID, err)
	}

	p.log.Debug("thumbnail requested",
		slog.String("workspace", req.Workspace),
		slog.String("object_id", req.ObjectID),
		slog.String("thumbnail_id", req.ThumbnailID),
		slog.Bool("inserted", inserted))
	return inserted, nil
}
