package redisholder

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestHolderSwap(t *testing.T) {
	first := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	second := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	h := NewHolder(first)
	assert.Same(t, first, h.Get())

	old := h.swap(second)
	assert.Same(t, first, old)
	assert.Same(t, second, h.Get())

	assert.NoError(t, first.Close())
	assert.NoError(t, h.Close())
}
