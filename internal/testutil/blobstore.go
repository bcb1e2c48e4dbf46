// Package testutil holds in-memory stand-ins for the blob store and the
// workspace transactor shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrBlobNotFound = errors.New("blob not found")

type Blob struct {
	Data        []byte
	ContentType string
}

// BlobStore keeps blobs in memory, keyed by workspace and key.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string]Blob

	PutErr error
	GetErr error
	Puts   int
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: map[string]Blob{}}
}

func blobKey(workspace, key string) string { return workspace + "/" + key }

// Seed stores data without counting as a Put.
func (s *BlobStore) Seed(workspace, key, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[blobKey(workspace, key)] = Blob{Data: data, ContentType: contentType}
}

func (s *BlobStore) Get(ctx context.Context, workspace, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	b, ok := s.blobs[blobKey(workspace, key)]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, ErrBlobNotFound)
	}
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

func (s *BlobStore) Put(ctx context.Context, workspace, key string, body io.Reader, contentType string, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put %q: size mismatch: declared %d, got %d", key, size, len(data))
	}
	s.Puts++
	s.blobs[blobKey(workspace, key)] = Blob{Data: data, ContentType: contentType}
	return nil
}

func (s *BlobStore) Remove(ctx context.Context, workspace string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.blobs, blobKey(workspace, k))
	}
	return nil
}

func (s *BlobStore) Lookup(workspace, key string) (Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[blobKey(workspace, key)]
	return b, ok
}

func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
