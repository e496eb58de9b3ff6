// Package concurrency runs work in fixed-size chunks so no more than Limit
// invocations are in flight at once.
package concurrency

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one worker invocation.
type Outcome[O any] struct {
	Index int
	Value O
	Err   error
}

// Options configures Run.
type Options struct {
	// Limit is the chunk size and therefore the maximum parallelism. Values
	// below one run items sequentially.
	Limit int
	// AfterChunk runs after every chunk with the number of completed items.
	// Returning an error stops the run before the next chunk.
	AfterChunk func(done int) error
}

// PanicError wraps a recovered worker panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}

// Run invokes worker for every item, one chunk of Limit items at a time. A
// failing or panicking item is recorded in its Outcome and does not cancel its
// siblings. Outcomes are returned in input order. When the context is
// cancelled or AfterChunk fails, Run returns the outcomes completed so far
// with the stopping error.
func Run[I, O any](ctx context.Context, items []I, worker func(ctx context.Context, item I) (O, error), opts Options) ([]Outcome[O], error) {
	limit := opts.Limit
	if limit < 1 {
		limit = 1
	}
	outcomes := make([]Outcome[O], 0, len(items))
	for start := 0; start < len(items); start += limit {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		end := min(start+limit, len(items))

		chunk := make([]Outcome[O], end-start)
		// plain Group: no shared cancellation between siblings
		var g errgroup.Group
		for i := start; i < end; i++ {
			slot := &chunk[i-start]
			item := items[i]
			slot.Index = i
			g.Go(func() error {
				slot.Value, slot.Err = invoke(ctx, worker, item)
				return nil
			})
		}
		_ = g.Wait()
		outcomes = append(outcomes, chunk...)

		if opts.AfterChunk != nil {
			if err := opts.AfterChunk(len(outcomes)); err != nil {
				return outcomes, err
			}
		}
	}
	return outcomes, nil
}

func invoke[I, O any](ctx context.Context, worker func(context.Context, I) (O, error), item I) (out O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return worker(ctx, item)
}
