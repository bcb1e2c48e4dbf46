package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/pool"
	"github.com/trunov/thumbnailer/internal/provider"
	"github.com/trunov/thumbnailer/internal/queue"
	"github.com/trunov/thumbnailer/internal/testutil"
	"github.com/trunov/thumbnailer/internal/transactor"
	"github.com/trunov/thumbnailer/internal/worker"
)

type sliceStore struct {
	mu      sync.Mutex
	pending []entities.ThumbnailRequest
	deleted []int64
}

func (s *sliceStore) Next(context.Context) (*entities.ThumbnailRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	r := s.pending[0]
	return &r, nil
}

func (s *sliceStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	s.pending = s.pending[1:]
	return nil
}

func (s *sliceStore) deletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleted)
}

type failingExtractor struct{}

func (failingExtractor) ExtractFrame(context.Context, string, time.Duration, string) ([]byte, error) {
	return nil, errors.New("ffmpeg exploded")
}

func TestPipeline(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	conn := testutil.NewConnection()
	conn.Add(entities.ClassBlob, entities.Object{ID: "vid", Class: entities.ClassBlob, Space: "sp", ContentType: "video/mp4"})
	conn.Add(entities.ClassBlob, entities.Object{ID: "pic", Class: entities.ClassBlob, Space: "sp", ContentType: "image/png"})
	conn.Add(entities.ClassThumbnail, entities.ThumbnailDocument{ID: "t-pic", Space: "sp", ObjectID: "pic", ObjectClass: entities.ClassBlob})

	blobs := testutil.NewBlobStore()
	blobs.Seed("ws", "vid", "video/mp4", []byte("movie"))

	log := logger.Discard()
	conns := pool.New(func(context.Context, string) (transactor.Connection, error) { return conn, nil }, time.Minute, log, nil)
	defer conns.CloseAll()

	registry := provider.NewRegistry(log, provider.Default(failingExtractor{}, 0, log)...)
	w := worker.New(conns, registry, blobs, entities.Params{Width: 64, Height: 64, Format: "png"}, log)

	store := &sliceStore{pending: []entities.ThumbnailRequest{
		{ID: 1, Workspace: "ws", ObjectID: "vid", ObjectClass: entities.ClassBlob, ThumbnailID: "t-vid"},
		{ID: 2, Workspace: "ws", ObjectID: "missing", ObjectClass: entities.ClassBlob, ThumbnailID: "t-missing"},
		{ID: 3, Workspace: "ws", ObjectID: "pic", ObjectClass: entities.ClassBlob, ThumbnailID: "t-pic"},
	}}

	c := queue.NewController(store, w, 10*time.Millisecond, log, nil)
	c.Start(context.Background())
	require.Eventually(t, func() bool { return store.deletedCount() == 3 }, 2*time.Second, 5*time.Millisecond)
	c.Close()

	assert.Equal(t, []int64{1, 2, 3}, store.deleted)
	assert.Equal(t, 1, blobs.Len(), "failed video transform wrote no blob")
	require.Len(t, conn.Updates, 1)
	assert.Equal(t, "t-pic", conn.Updates[0].ID)
	assert.Equal(t, "pic", conn.Doc(entities.ClassThumbnail, "t-pic")["thumbnail"])
}
