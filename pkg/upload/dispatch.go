// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import (
	"context"
	"sync"
)

// NewWorkerFunc builds the engine one worker will own. Implementations
// hand each engine its own cache clone so workers never share mutable
// state.
type NewWorkerFunc func() *Engine

// Process uploads rows through a pool of workers and hands every
// result to yield, exactly one per row. With one worker rows are
// processed and yielded in input order; with more, in finish order.
// yield is always called from the calling goroutine.
//
// Cancelling ctx does not abandon rows: the ones not yet uploaded
// still yield a result carrying the context error, so callers can
// account for every row. Process returns the context error, if any.
func Process(ctx context.Context, rows []*Row, workers int, newWorker NewWorkerFunc, yield func(Result)) error {
	if workers > len(rows) {
		workers = len(rows)
	}

	if workers <= 1 {
		eng := newWorker()
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				yield(Result{Key: row.Key(), Err: err})
				continue
			}
			yield(eng.Upload(ctx, row))
		}
		return ctx.Err()
	}

	jobs := make(chan *Row, len(rows))
	for _, row := range rows {
		jobs <- row
	}
	close(jobs)

	results := make(chan Result, len(rows))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng := newWorker()
			for row := range jobs {
				select {
				case <-ctx.Done():
					results <- Result{Key: row.Key(), Err: ctx.Err()}
					continue
				default:
				}
				results <- eng.Upload(ctx, row)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		yield(res)
	}
	return ctx.Err()
}
