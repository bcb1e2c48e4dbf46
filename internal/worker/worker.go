// Package worker runs one thumbnail request against its workspace.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/provider"
	"github.com/trunov/thumbnailer/internal/tracing"
	"github.com/trunov/thumbnailer/internal/transactor"
)

// Connections hands out workspace connections. The worker never closes them.
type Connections interface {
	Get(ctx context.Context, workspace string) (transactor.Connection, error)
}

type Resolver interface {
	Resolve(ctx context.Context, obj *entities.Object) (provider.Provider, bool)
}

type Worker struct {
	conns    Connections
	registry Resolver
	store    provider.BlobStore
	params   entities.Params
	log      *slog.Logger
}

func New(conns Connections, registry Resolver, store provider.BlobStore, params entities.Params, log *slog.Logger) *Worker {
	return &Worker{
		conns:    conns,
		registry: registry,
		store:    store,
		params:   params,
		log:      log.With(logger.Scope("worker")),
	}
}

// Process generates the preview for req and links it from the thumbnail
// document. It returns false when there is nothing to do: the object is gone
// or no provider handles it.
func (w *Worker) Process(ctx context.Context, req entities.ThumbnailRequest) (bool, error) {
	log := w.log.With(
		slog.String("workspace", req.Workspace),
		slog.String("object_class", req.ObjectClass),
		slog.String("object_id", req.ObjectID),
	)

	conn, err := w.conns.Get(ctx, req.Workspace)
	if err != nil {
		return false, fmt.Errorf("workspace connection: %w", err)
	}

	var (
		obj   entities.Object
		found bool
	)
	err = tracing.With(ctx, "query-object", func(ctx context.Context) error {
		var err error
		found, err = conn.FindOne(ctx, req.ObjectClass, map[string]any{"_id": req.ObjectID}, &obj)
		return err
	}, attribute.String("object_class", req.ObjectClass))
	if err != nil {
		return false, fmt.Errorf("find object: %w", err)
	}
	if !found {
		log.Warn("object not found, skipping thumbnail")
		return false, nil
	}
	if obj.Class == "" {
		obj.Class = req.ObjectClass
	}

	_, span := tracing.Start(ctx, "find-provider")
	p, ok := w.registry.Resolve(ctx, &obj)
	span.End()
	if !ok {
		return false, nil
	}

	var blobID string
	err = tracing.With(ctx, "provide", func(ctx context.Context) error {
		var err error
		blobID, err = p.Transform(ctx, conn, w.store, req.Workspace, &obj, w.params)
		return err
	}, attribute.String("provider", p.Name))
	if err != nil {
		return false, fmt.Errorf("provider %s: %w", p.Name, err)
	}

	err = tracing.With(ctx, "update-thumbnail", func(ctx context.Context) error {
		return conn.UpdateDoc(ctx, entities.ClassThumbnail, obj.Space, req.ThumbnailID, map[string]any{"thumbnail": blobID})
	})
	if err != nil {
		return false, fmt.Errorf("update thumbnail %s: %w", req.ThumbnailID, err)
	}

	log.Debug("thumbnail updated", slog.String("provider", p.Name), slog.String("blob", blobID))
	return true, nil
}
