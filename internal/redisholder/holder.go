// Package redisholder owns the Redis client used for the consumer lease and
// replaces it when the health loop has to reconnect.
package redisholder

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

type box struct {
	client redis.UniversalClient
}

// Holder hands out the current client. Callers must not cache the result
// across operations, since a reconnect swaps it.
type Holder struct {
	v atomic.Pointer[box]
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.v.Store(&box{client: initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	if b := h.v.Load(); b != nil {
		return b.client
	}
	return nil
}

func (h *Holder) swap(next redis.UniversalClient) redis.UniversalClient {
	if old := h.v.Swap(&box{client: next}); old != nil {
		return old.client
	}
	return nil
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
