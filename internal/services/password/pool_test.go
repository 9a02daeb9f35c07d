package password

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mcoot/credauth/internal/metrics"
)

// gatedHasher blocks every call until release is closed
type gatedHasher struct {
	release chan struct{}
	calls   atomic.Int64
	peak    atomic.Int64
	active  atomic.Int64
}

func newGatedHasher() *gatedHasher {
	return &gatedHasher{release: make(chan struct{})}
}

func (g *gatedHasher) enter() {
	g.calls.Add(1)
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-g.release
	g.active.Add(-1)
}

func (g *gatedHasher) Hash(password string) (string, error) {
	g.enter()
	return "hashed:" + password, nil
}

func (g *gatedHasher) Verify(password, encoded string) (bool, error) {
	g.enter()
	return encoded == "hashed:"+password, nil
}

func (g *gatedHasher) NeedsRehash(string) bool { return false }

func TestPoolHashAndVerify(t *testing.T) {
	defer goleak.VerifyNone(t)

	h, err := NewHasher("pepper", fastParams())
	require.NoError(t, err)
	pool := NewPool(h, 2, metrics.New(prometheus.NewRegistry()))

	hash, err := pool.Hash(context.Background(), "Abcdef12")
	require.NoError(t, err)

	ok, err := pool.Verify(context.Background(), "Abcdef12", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pool.Verify(context.Background(), "wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 0, pool.InFlight())
}

func TestPoolPropagatesHasherErrors(t *testing.T) {
	h, err := NewHasher("pepper", fastParams())
	require.NoError(t, err)
	pool := NewPool(h, 1, nil)

	_, err = pool.Hash(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = pool.Verify(context.Background(), "x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedHasher()
	pool := NewPool(g, 2, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Hash(context.Background(), "pw")
		}()
	}

	require.Eventually(t, func() bool { return pool.InFlight() == 2 }, time.Second, 5*time.Millisecond)
	// Give waiting callers a chance to (wrongly) start
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, pool.InFlight())

	close(g.release)
	wg.Wait()

	assert.Equal(t, int64(6), g.calls.Load())
	assert.Equal(t, int64(2), g.peak.Load())
}

func TestPoolHonoursCancellationWhileWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedHasher()
	pool := NewPool(g, 1, nil)

	// Occupy the only slot
	occupied := make(chan struct{})
	go func() {
		defer close(occupied)
		_, _ = pool.Hash(context.Background(), "first")
	}()
	require.Eventually(t, func() bool { return pool.InFlight() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Verify(ctx, "second", "hashed:second")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int64(1), g.calls.Load())

	close(g.release)
	<-occupied
}

func TestPoolReturnsWhenCallerCancelsMidHash(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := newGatedHasher()
	pool := NewPool(g, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Hash(ctx, "pw")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return pool.InFlight() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The slot stays held until the hash actually finishes
	assert.Equal(t, 1, pool.InFlight())
	close(g.release)
	require.Eventually(t, func() bool { return pool.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNewPoolDefaultsSize(t *testing.T) {
	pool := NewPool(newGatedHasher(), 0, nil)
	assert.Equal(t, DefaultPoolSize(), pool.Size())
	assert.GreaterOrEqual(t, pool.Size(), 1)
}
