package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/tracing"
	"github.com/trunov/thumbnailer/internal/transactor"
)

// DefaultFrameOffset is where video previews are taken from.
const DefaultFrameOffset = time.Second

// FrameExtractor pulls one encoded frame out of a media file on disk.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, input string, offset time.Duration, format string) ([]byte, error)
}

func isVideo(_ context.Context, obj *entities.Object) (bool, error) {
	return strings.HasPrefix(obj.MediaType(), "video/"), nil
}

type video struct {
	ff     FrameExtractor
	offset time.Duration
	log    *slog.Logger
}

// Video grabs a single frame from the source video. The source is spooled to
// a scratch directory which is removed once the call returns.
func Video(ff FrameExtractor, offset time.Duration, log *slog.Logger) Provider {
	if offset <= 0 {
		offset = DefaultFrameOffset
	}
	v := &video{ff: ff, offset: offset, log: log.With(logger.Scope("video-provider"))}
	return Provider{
		Name:        "video/*",
		ObjectClass: entities.ClassBlob,
		Match:       isVideo,
		Transform:   WithTracing("video/*", v.transform),
	}
}

func (v *video) transform(ctx context.Context, _ transactor.Connection, store BlobStore, workspace string, obj *entities.Object, params entities.Params) (string, error) {
	dir, err := os.MkdirTemp("", "thumbnail-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer v.removeScratch(ctx, dir)

	input := filepath.Join(dir, "video"+extension(obj))
	err = tracing.With(ctx, "save-temp-file", func(ctx context.Context) error {
		return spool(ctx, store, workspace, obj.StorageKey(), input)
	})
	if err != nil {
		return "", err
	}

	var frame []byte
	err = tracing.With(ctx, "generate-thumbnail", func(ctx context.Context) error {
		var err error
		frame, err = v.ff.ExtractFrame(ctx, input, v.offset, params.Format)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("extract frame of %s: %w", obj.ID, err)
	}

	return saveBlob(ctx, store, workspace, frame, params)
}

func (v *video) removeScratch(ctx context.Context, dir string) {
	_ = tracing.With(ctx, "remove-temp-file", func(context.Context) error {
		if err := os.RemoveAll(dir); err != nil {
			v.log.Warn("failed to remove scratch dir", slog.String("dir", dir), logger.Error(err))
			return err
		}
		return nil
	})
}

func spool(ctx context.Context, store BlobStore, workspace, key, path string) error {
	rc, err := store.Get(ctx, workspace, key)
	if err != nil {
		return fmt.Errorf("get blob %s: %w", key, err)
	}
	defer rc.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return fmt.Errorf("write scratch file: %w", err)
	}
	return f.Close()
}

// extension gives ffmpeg a hint about the container.
func extension(obj *entities.Object) string {
	if mt := mimetype.Lookup(obj.MediaType()); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".mp4"
}
