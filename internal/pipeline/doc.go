// Package pipeline turns media refs into cached local files and decoded
// images.
//
// A request walks the same path every time:
//
//  1. A decoded image for the ref's key in the RAM cache completes the
//     request on the caller's goroutine.
//  2. A ref whose original or cached path is a local file is decoded
//     from disk.
//  3. The sqlite index is consulted for a file cached by an earlier run.
//  4. Otherwise the fetcher opens the source and the persister writes it
//     into the cache root, under the folder for its category and a
//     generated name. The ref's cached path is set and the index updated.
//  5. Image results are decoded, after waiting out any memory pause, and
//     stored in the RAM cache.
//
// Work runs on a bounded worker pool. Requests for a key that is already
// being fetched share that fetch. Every [Task] delivers exactly one
// [Result]; callbacks given in [RequestOptions] run one at a time on the
// pipeline's [Dispatcher], with a task's progress callbacks always ahead
// of its completion callback. Progress callbacks are dropped while the
// dispatcher is backed up, so a slow callback never stalls a persist;
// completion callbacks are never dropped, even after Close.
//
// Canceling a task, or its context, stops a persist at the next chunk.
//
//	p, err := pipeline.New(pipeline.DefaultConfig(cacheDir), pipeline.Deps{
//	    Fetcher:   router,
//	    Persister: storage.New(storage.DefaultOptions()),
//	    Decoder:   media.NewDecoder(),
//	    Cache:     ramcache.New(),
//	    Index:     db,
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	result := p.Load(ctx, media.NewPathRef(url), pipeline.RequestOptions{})
package pipeline
