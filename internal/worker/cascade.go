package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/provider"
	"github.com/trunov/thumbnailer/internal/transactor"
)

// ThumbnailsForObject lists the thumbnail documents pointing at obj. Callers
// removing obj remove these with it.
func ThumbnailsForObject(ctx context.Context, conn transactor.Connection, obj *entities.Object) ([]entities.ThumbnailDocument, error) {
	var docs []entities.ThumbnailDocument
	err := conn.FindAll(ctx, entities.ClassThumbnail, map[string]any{
		"objectId":    obj.ID,
		"objectClass": obj.Class,
	}, &docs)
	if err != nil {
		return nil, fmt.Errorf("find thumbnails of %s: %w", obj.ID, err)
	}
	return docs, nil
}

// BlobForThumbnail is the blob to drop along with doc. Pass-through previews
// point at the source object itself and must be kept.
func BlobForThumbnail(doc entities.ThumbnailDocument) (string, bool) {
	if doc.Thumbnail == nil || *doc.Thumbnail == "" || *doc.Thumbnail == doc.ObjectID {
		return "", false
	}
	return *doc.Thumbnail, true
}

// RemoveThumbnail deletes the preview blob of a thumbnail document being removed.
func RemoveThumbnail(ctx context.Context, store provider.BlobStore, workspace string, doc entities.ThumbnailDocument) error {
	blob, ok := BlobForThumbnail(doc)
	if !ok {
		return nil
	}
	if err := store.Remove(ctx, workspace, []string{blob}); err != nil {
		return fmt.Errorf("remove preview %s: %w", blob, err)
	}
	return nil
}

// RemoveThumbnails drops the preview blobs of every thumbnail document that
// points at the object. The documents themselves belong to the workspace.
func (w *Worker) RemoveThumbnails(ctx context.Context, workspace string, obj *entities.Object) (int, error) {
	conn, err := w.conns.Get(ctx, workspace)
	if err != nil {
		return 0, fmt.Errorf("workspace connection: %w", err)
	}

	docs, err := ThumbnailsForObject(ctx, conn, obj)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, d := range docs {
		if _, ok := BlobForThumbnail(d); !ok {
			continue
		}
		if err := RemoveThumbnail(ctx, w.store, workspace, d); err != nil {
			return removed, err
		}
		removed++
	}

	w.log.Debug("thumbnail blobs removed",
		slog.String("workspace", workspace),
		slog.String("object_id", obj.ID),
		slog.Int("removed", removed))
	return removed, nil
}
