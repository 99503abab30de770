// Package workers sizes and runs the goroutine pools used by the cache
// pipeline.
//
// # Sizing
//
// [Count] derives a worker count from GOMAXPROCS, which the runtime sets
// from the container CPU limit. The helpers cover the usual cases:
//
//	numWorkers := workers.ForCPU(8)    // decoding
//	numWorkers := workers.ForIO(16)    // fetching and persisting
//	numWorkers := workers.ForMixed(12) // both
//
// On a 2 CPU container ForCPU(8) returns 2, ForIO(8) returns 4 and
// ForMixed(8) returns 3. Setting FETCH_WORKERS pins the count for every
// helper, still subject to the limit argument.
//
// # Pools
//
// A [Pool] runs [Job] functions on a fixed set of goroutines:
//
//	pool := workers.NewPool(workers.ForIO(16), 64)
//	defer pool.Close()
//
//	err := pool.Submit(ctx, func(ctx context.Context) {
//	    // ctx is canceled when the pool closes
//	})
//
// Submit blocks while the queue is full. Close waits for queued jobs, so
// long jobs should watch their context.
package workers
