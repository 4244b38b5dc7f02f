// Package taskqueue runs fetch tasks with a bounded number in flight and
// streams their results back in completion order.
package taskqueue

import (
	"context"
	"iter"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Task is one unit of asynchronous work
type Task[T any] func(ctx context.Context) (T, error)

type result[T any] struct {
	value T
	err   error
}

// Run executes tasks with at most limit running at once and yields each
// result as it completes. A failed task is yielded as (zero, err) and does not
// stop its siblings; the consumer decides whether to keep ranging.
//
// When the consumer stops early no further tasks are started. Tasks already
// running finish in the background and their results are discarded.
// Cancelling ctx stops submission, is observed by running tasks, and ends the
// sequence with ctx.Err().
func Run[T any](ctx context.Context, limit int, tasks iter.Seq[Task[T]]) iter.Seq2[T, error] {
	if limit < 1 {
		limit = 1
	}
	return func(yield func(T, error) bool) {
		submitCtx, stopSubmitting := context.WithCancel(ctx)
		defer stopSubmitting()

		// closed when the consumer is gone so workers never block on send
		done := make(chan struct{})
		defer close(done)

		sem := semaphore.NewWeighted(int64(limit))
		results := make(chan result[T])

		go func() {
			var wg sync.WaitGroup
			defer func() {
				wg.Wait()
				close(results)
			}()
			for task := range tasks {
				if err := sem.Acquire(submitCtx, 1); err != nil {
					return
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer sem.Release(1)

					value, err := task(ctx)
					select {
					case results <- result[T]{value: value, err: err}:
					case <-done:
					}
				}()
			}
		}()

		for r := range results {
			if !yield(r.value, r.err) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Slice adapts a slice of tasks into a sequence
func Slice[T any](tasks []Task[T]) iter.Seq[Task[T]] {
	return func(yield func(Task[T]) bool) {
		for _, task := range tasks {
			if !yield(task) {
				return
			}
		}
	}
}
