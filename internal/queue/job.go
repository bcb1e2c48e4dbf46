package queue

import (
	"context"

	"github.com/trunov/thumbnailer/internal/entities"
)

// Store is the durable collection of pending thumbnail requests.
// Next returns nil when the queue is empty.
type Store interface {
	Next(ctx context.Context) (*entities.ThumbnailRequest, error)
	Delete(ctx context.Context, id int64) error
}

// Processor handles one request. false means the request was skipped.
type Processor interface {
	Process(ctx context.Context, req entities.ThumbnailRequest) (bool, error)
}
