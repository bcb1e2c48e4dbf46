package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/processor"
	"github.com/trunov/thumbnailer/internal/tracing"
	"github.com/trunov/thumbnailer/internal/transactor"
)

const gifMediaType = "image/gif"

func isGIF(_ context.Context, obj *entities.Object) (bool, error) {
	return obj.MediaType() == gifMediaType, nil
}

// GIF renders the first frame of an animated image, resized and cropped to
// the target size.
func GIF() Provider {
	return Provider{
		Name:        gifMediaType,
		ObjectClass: entities.ClassBlob,
		Match:       isGIF,
		Transform:   WithTracing(gifMediaType, gifTransform),
	}
}

func gifTransform(ctx context.Context, _ transactor.Connection, store BlobStore, workspace string, obj *entities.Object, params entities.Params) (string, error) {
	var data []byte
	err := tracing.With(ctx, "read-blob", func(ctx context.Context) error {
		rc, err := store.Get(ctx, workspace, obj.StorageKey())
		if err != nil {
			return fmt.Errorf("get blob %s: %w", obj.StorageKey(), err)
		}
		defer rc.Close()

		data, err = io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read blob %s: %w", obj.StorageKey(), err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if mt := mimetype.Detect(data); !mt.Is(gifMediaType) {
		return "", fmt.Errorf("blob %s is %s, not a gif", obj.StorageKey(), mt.String())
	}

	var out []byte
	err = tracing.With(ctx, "generate-thumbnail", func(ctx context.Context) error {
		var p processor.ImageProcessor
		if err := p.LoadFrame(bytes.NewReader(data), 0); err != nil {
			return err
		}
		p.Apply(processor.Thumbnail(params.Width, params.Height)...)

		var err error
		out, err = p.Encode(params.Format)
		return err
	})
	if err != nil {
		return "", err
	}

	return saveBlob(ctx, store, workspace, out, params)
}

func saveBlob(ctx context.Context, store BlobStore, workspace string, data []byte, params entities.Params) (string, error) {
	id := newBlobID()
	err := tracing.With(ctx, "save-blob", func(ctx context.Context) error {
		return store.Put(ctx, workspace, id, bytes.NewReader(data), params.ContentType(), int64(len(data)))
	})
	if err != nil {
		return "", fmt.Errorf("put blob %s: %w", id, err)
	}
	return id, nil
}
