package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/testutil"
	"github.com/trunov/thumbnailer/internal/transactor"
)

type dialer struct {
	mu    sync.Mutex
	calls atomic.Int32
	conns map[string][]*testutil.Connection
	delay time.Duration
	err   error
}

func newDialer() *dialer {
	return &dialer{conns: map[string][]*testutil.Connection{}}
}

func (d *dialer) dial(ctx context.Context, workspace string) (transactor.Connection, error) {
	d.calls.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return nil, d.err
	}
	c := testutil.NewConnection()
	d.mu.Lock()
	d.conns[workspace] = append(d.conns[workspace], c)
	d.mu.Unlock()
	return c, nil
}

func (d *dialer) opened(workspace string) []*testutil.Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*testutil.Connection(nil), d.conns[workspace]...)
}

func TestGet_ReusesConnection(t *testing.T) {
	d := newDialer()
	p := New(d.dial, time.Minute, logger.Discard(), nil)
	defer p.CloseAll()

	first, err := p.Get(context.Background(), "ws-1")
	require.NoError(t, err)
	second, err := p.Get(context.Background(), "ws-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), d.calls.Load())
	assert.Equal(t, 1, p.Len())
}

func TestGet_SeparateWorkspaces(t *testing.T) {
	d := newDialer()
	p := New(d.dial, time.Minute, logger.Discard(), nil)
	defer p.CloseAll()

	a, err := p.Get(context.Background(), "ws-a")
	require.NoError(t, err)
	b, err := p.Get(context.Background(), "ws-b")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, p.Len())
}

func TestGet_EvictsIdleConnection(t *testing.T) {
	d := newDialer()
	p := New(d.dial, 30*time.Millisecond, logger.Discard(), nil)
	defer p.CloseAll()

	first, err := p.Get(context.Background(), "ws-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.opened("ws-1")[0].Closed())

	second, err := p.Get(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), d.calls.Load())
}

func TestGet_AccessResetsIdleTimer(t *testing.T) {
	d := newDialer()
	p := New(d.dial, 80*time.Millisecond, logger.Discard(), nil)
	defer p.CloseAll()

	first, err := p.Get(context.Background(), "ws-1")
	require.NoError(t, err)

	// keep touching well inside the window for longer than the window itself
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		conn, err := p.Get(context.Background(), "ws-1")
		require.NoError(t, err)
		assert.Same(t, first, conn)
	}

	assert.Equal(t, int32(1), d.calls.Load())
	assert.False(t, d.opened("ws-1")[0].Closed())
}

func TestGet_ConcurrentCallersShareOneDial(t *testing.T) {
	d := newDialer()
	d.delay = 20 * time.Millisecond
	p := New(d.dial, time.Minute, logger.Discard(), nil)
	defer p.CloseAll()

	var wg sync.WaitGroup
	conns := make([]transactor.Connection, 8)
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := p.Get(context.Background(), "ws-1")
			assert.NoError(t, err)
			conns[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), d.calls.Load())
	for _, c := range conns[1:] {
		assert.Same(t, conns[0], c)
	}
}

func TestGet_DialError(t *testing.T) {
	d := newDialer()
	d.err = errors.New("refused")
	p := New(d.dial, time.Minute, logger.Discard(), nil)

	_, err := p.Get(context.Background(), "ws-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, d.err)
	assert.Equal(t, 0, p.Len())
}

func TestClose_Workspace(t *testing.T) {
	d := newDialer()
	p := New(d.dial, time.Minute, logger.Discard(), nil)
	defer p.CloseAll()

	_, err := p.Get(context.Background(), "ws-1")
	require.NoError(t, err)
	_, err = p.Get(context.Background(), "ws-2")
	require.NoError(t, err)

	require.NoError(t, p.Close("ws-1"))
	require.NoError(t, p.Close("unknown"))

	assert.True(t, d.opened("ws-1")[0].Closed())
	assert.False(t, d.opened("ws-2")[0].Closed())
	assert.Equal(t, 1, p.Len())
}

func TestCloseAll(t *testing.T) {
	d := newDialer()
	p := New(d.dial, 20*time.Millisecond, logger.Discard(), nil)

	for _, ws := range []string{"a", "b", "c"} {
		_, err := p.Get(context.Background(), ws)
		require.NoError(t, err)
	}

	require.NoError(t, p.CloseAll())
	assert.Equal(t, 0, p.Len())

	// timers were cancelled: nothing is closed twice
	time.Sleep(50 * time.Millisecond)
	for _, ws := range []string{"a", "b", "c"} {
		conn := d.opened(ws)[0]
		assert.True(t, conn.Closed())
		assert.Equal(t, 1, conn.Closes)
	}

	_, err := p.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestExpire_IgnoresStaleTimer(t *testing.T) {
	d := newDialer()
	p := New(d.dial, time.Minute, logger.Discard(), nil)
	defer p.CloseAll()

	conn, err := p.Get(context.Background(), "ws-1")
	require.NoError(t, err)

	p.mu.Lock()
	e := p.entries["ws-1"]
	staleGen := e.gen
	p.mu.Unlock()

	// a reuse bumps the generation; the earlier timer must not evict
	_, err = p.Get(context.Background(), "ws-1")
	require.NoError(t, err)
	p.expire("ws-1", e, staleGen)

	assert.Equal(t, 1, p.Len())
	assert.False(t, conn.(*testutil.Connection).Closed())
}
