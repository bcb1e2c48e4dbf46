// Package provider turns source objects into preview blobs. Providers are
// registered per document class and picked in registration order.
package provider

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/tracing"
	"github.com/trunov/thumbnailer/internal/transactor"
)

// BlobStore is the byte store holding both source and preview blobs.
type BlobStore interface {
	Get(ctx context.Context, workspace, key string) (io.ReadCloser, error)
	Put(ctx context.Context, workspace, key string, body io.Reader, contentType string, size int64) error
	Remove(ctx context.Context, workspace string, keys []string) error
}

// Predicate reports whether a provider can handle obj.
type Predicate func(ctx context.Context, obj *entities.Object) (bool, error)

// TransformFunc produces a preview for obj and returns the id of the blob
// holding it. Errors are returned to the caller as is.
type TransformFunc func(
	ctx context.Context,
	conn transactor.Connection,
	store BlobStore,
	workspace string,
	obj *entities.Object,
	params entities.Params,
) (string, error)

type Provider struct {
	// Name labels the provider in logs and spans.
	Name        string
	ObjectClass string
	// Match is optional; a provider without one accepts every object of its class.
	Match     Predicate
	Transform TransformFunc
}

// WithTracing runs transform inside a span named label.
func WithTracing(label string, transform TransformFunc) TransformFunc {
	return func(ctx context.Context, conn transactor.Connection, store BlobStore, workspace string, obj *entities.Object, params entities.Params) (string, error) {
		var id string
		err := tracing.With(ctx, label, func(ctx context.Context) error {
			var err error
			id, err = transform(ctx, conn, store, workspace, obj, params)
			return err
		})
		return id, err
	}
}

func newBlobID() string {
	return "preview-" + uuid.NewString()
}
