package link

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs dispatched requests, possibly concurrently with each other and
// with the link's reader. Execute may block; it must give up once ctx is done.
type Executor interface {
	Execute(ctx context.Context, task func()) error
}

type ExecutorFunc func(ctx context.Context, task func()) error

func (f ExecutorFunc) Execute(ctx context.Context, task func()) error {
	return f(ctx, task)
}

// GoExecutor runs every task on its own goroutine.
func GoExecutor() Executor {
	return ExecutorFunc(func(ctx context.Context, task func()) error {
		go task()
		return nil
	})
}

// Pool runs at most size tasks at once. A link reader waiting for a free slot
// stops waiting when the link closes, so a saturated pool cannot wedge shutdown.
// One Pool may be shared by many links.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func NewPool(size int64) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(size)}
}

func (p *Pool) Execute(ctx context.Context, task func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		task()
	}()
	return nil
}

// Wait blocks until every task handed to the pool has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
