package password

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mcoot/credauth/internal/metrics"
)

// PasswordHasher is the hashing primitive the pool dispatches to
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// Ensure Hasher implements PasswordHasher
var _ PasswordHasher = (*Hasher)(nil)

// DefaultPoolSize bounds concurrent hashes to half the usable CPUs.
// Each argon2id call holds Params.Memory KiB for its duration.
func DefaultPoolSize() int {
	return max(1, runtime.GOMAXPROCS(0)/2)
}

// Pool runs hashing work on a bounded number of goroutines so that
// concurrent logins cannot multiply memory cost without limit.
type Pool struct {
	hasher   PasswordHasher
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
	metrics  *metrics.Metrics
}

// NewPool creates a Pool allowing at most size concurrent operations.
// size <= 0 selects DefaultPoolSize.
func NewPool(hasher PasswordHasher, size int, m *metrics.Metrics) *Pool {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	return &Pool{
		hasher:  hasher,
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		metrics: m,
	}
}

// Size returns the maximum number of concurrent operations
func (p *Pool) Size() int {
	return p.size
}

// InFlight returns the number of operations currently holding a slot
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Hash hashes password on a pool slot.
// Returns ctx.Err() if the context ends before the result is available.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	type result struct {
		hash string
		err  error
	}
	res, err := run(ctx, p, "hash", func() result {
		h, err := p.hasher.Hash(password)
		return result{h, err}
	})
	if err != nil {
		return "", err
	}
	return res.hash, res.err
}

// Verify checks password against encoded on a pool slot
func (p *Pool) Verify(ctx context.Context, password, encoded string) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	res, err := run(ctx, p, "verify", func() result {
		ok, err := p.hasher.Verify(password, encoded)
		return result{ok, err}
	})
	if err != nil {
		return false, err
	}
	return res.ok, res.err
}

// NeedsRehash is cheap and runs inline
func (p *Pool) NeedsRehash(encoded string) bool {
	return p.hasher.NeedsRehash(encoded)
}

// run acquires a slot and executes fn on its own goroutine. The slot is held
// until fn returns even if the caller gives up, so the bound always holds.
func run[T any](ctx context.Context, p *Pool, op string, fn func() T) (T, error) {
	var zero T

	p.metrics.AddWaiting(1)
	err := p.sem.Acquire(ctx, 1)
	p.metrics.AddWaiting(-1)
	if err != nil {
		return zero, err
	}

	done := make(chan T, 1)
	go func() {
		defer p.sem.Release(1)

		p.inFlight.Add(1)
		p.metrics.AddInFlight(1)
		defer func() {
			p.inFlight.Add(-1)
			p.metrics.AddInFlight(-1)
		}()

		start := time.Now()
		v := fn()
		p.metrics.ObserveHash(op, time.Since(start))
		done <- v
	}()

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
