package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lavrd/tiktok-dl-tg/internal/types"
)

type Task interface {
	Do()
}

// Func adapts ordinary function to Task.
type Func func()

func (f Func) Do() { f() }

type Worker struct {
	taskC chan Task
	slotC chan struct{}
}

func (w *Worker) Run() {
	for task := range w.taskC {
		w.do(task)
	}
}

func (w *Worker) do(task Task) {
	defer func() { <-w.slotC }()
	// Worker should survive a broken task, otherwise pool shrinks silently.
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("task panicked")
		}
	}()
	task.Do()
}

// Pool is a fixed number of workers. Every accepted task holds a slot
// until it is done, so pool never accepts more tasks than it has workers.
type Pool struct {
	taskC chan Task
	slotC chan struct{}
	wg    *sync.WaitGroup
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	pool := &Pool{
		taskC: make(chan Task, workers),
		slotC: make(chan struct{}, workers),
		wg:    &sync.WaitGroup{},
	}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer pool.wg.Done()
			(&Worker{taskC: pool.taskC, slotC: pool.slotC}).Run()
		}()
	}
	return pool
}

// Submit blocks until some worker is free or context is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case p.slotC <- struct{}{}:
		p.taskC <- task
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to submit task: %w", ctx.Err())
	}
}

// TrySubmit returns false if all workers are busy.
func (p *Pool) TrySubmit(task Task) bool {
	select {
	case p.slotC <- struct{}{}:
		p.taskC <- task
		return true
	default:
		return false
	}
}

// Close stops accepting tasks and waits for running ones.
// It must not be called concurrently with Submit.
func (p *Pool) Close() {
	close(p.taskC)
	p.wg.Wait()
}

// Run executes fn on the pool and waits for its result.
// If context is done first, fn keeps running on the worker and its result
// is passed to discard (when not nil), so nothing produced by fn is lost unowned.
func Run[T any](ctx context.Context, pool *Pool, fn func() (T, error), discard func(T)) (T, error) {
	type result struct {
		value T
		err   error
	}
	var zero T
	// Buffered, so worker never blocks on send.
	resultC := make(chan result, 1)
	// Guards the moment when result is either handed to the caller or given up.
	mu := &sync.Mutex{}
	abandoned := false
	deliver := func(res result) {
		mu.Lock()
		defer mu.Unlock()
		if !abandoned {
			resultC <- res
			return
		}
		if res.err == nil && discard != nil {
			discard(res.value)
		}
	}
	err := pool.Submit(ctx, Func(func() {
		defer func() {
			if rec := recover(); rec != nil {
				deliver(result{err: fmt.Errorf("task panicked: %v: %w", rec, types.ErrInternal)})
			}
		}()
		value, err := fn()
		deliver(result{value: value, err: err})
	}))
	if err != nil {
		return zero, err
	}
	select {
	case res := <-resultC:
		return res.value, res.err
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		abandoned = true
		// Result could be delivered at the same moment, it still has an owner then.
		select {
		case res := <-resultC:
			return res.value, res.err
		default:
		}
		return zero, fmt.Errorf("task result is not received: %w", ctx.Err())
	}
}
