package use_case

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/trunov/thumbnailer/internal/entities"
)

var ErrInvalidRequest = errors.New("invalid thumbnail request")

type Producer interface {
	Enqueue(ctx context.Context, req entities.ThumbnailRequest) (bool, error)
}

type ThumbnailRemover interface {
	RemoveThumbnails(ctx context.Context, workspace string, obj *entities.Object) (int, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type useCase struct {
	producer  Producer
	remover   ThumbnailRemover
	db        Pinger
	validator *validator.Validate
}

func New(producer Producer, remover ThumbnailRemover, db Pinger) *useCase {
	return &useCase{
		producer:  producer,
		remover:   remover,
		db:        db,
		validator: validator.New(),
	}
}

// RequestThumbnail queues req unless the same thumbnail document is already
// waiting in the same workspace. It reports whether a record was created.
func (c *useCase) RequestThumbnail(ctx context.Context, req entities.ThumbnailRequest) (bool, error) {
	if err := c.validator.Struct(req); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return c.producer.Enqueue(ctx, req)
}

// RemoveThumbnails is called when an object is deleted; it drops the preview
// blobs generated for it.
func (c *useCase) RemoveThumbnails(ctx context.Context, req entities.ObjectRef) (int, error) {
	if err := c.validator.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return c.remover.RemoveThumbnails(ctx, req.Workspace, &entities.Object{ID: req.ObjectID, Class: req.ObjectClass})
}

func (c *useCase) Health(ctx context.Context) error {
	return c.db.Ping(ctx)
}
