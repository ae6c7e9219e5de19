// Package parallel splits index ranges across goroutines.
package parallel

import (
	"sync"
)

// ParallelizeN divides items into contiguous ranges, one per worker, and runs
// fn(start, end) for each range concurrently. It returns when all ranges are
// done. workers < 1 means one.
func ParallelizeN(items, workers int, fn func(start, end int)) {
	if items <= 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > items {
		workers = items // No need for more workers than items
	}
	if workers == 1 {
		fn(0, items)
		return
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold fans out only when items exceeds threshold.
// At or below the threshold fn runs once over the whole range on the calling goroutine.
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	ParallelizeN(items, workers, fn)
}
