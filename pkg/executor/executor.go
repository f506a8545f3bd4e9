package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrStopped is returned by Submit once the pool no longer accepts work.
var ErrStopped = errors.New("executor stopped")

// Executor runs blocking work off the caller's goroutine.
type Executor interface {
	// Submit schedules task. It returns ErrStopped if the executor cannot accept work.
	Submit(task func()) error
}

// Pool runs at most size blocking tasks at a time. Tasks submitted while the
// pool is saturated wait for a free slot.
type Pool struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	logger  zerolog.Logger
}

// NewPool creates a pool running up to size tasks concurrently.
func NewPool(size int, logger zerolog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, errors.New("pool size must be greater than 0")
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger.With().Str("component", "executor").Logger(),
	}, nil
}

// Submit schedules task on the pool.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Acquire with a background context never fails.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		task()
	}()
	return nil
}

// Shutdown stops accepting tasks and waits for the running ones until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug().Msg("executor drained")
		return nil
	case <-ctx.Done():
		p.logger.Warn().Err(ctx.Err()).Msg("executor shutdown abandoned with tasks still running")
		return ctx.Err()
	}
}
