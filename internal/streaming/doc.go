/*
Package streaming serves cached media files to HTTP clients without letting
a slow or vanished client pin a handler goroutine.

[TimeoutWriter] wraps an http.ResponseWriter:

  - every body write is bounded by WriteTimeout
  - no progress for IdleTimeout stops the stream
  - MaxDuration, when set, bounds the whole response
  - large writes are split into ChunkSize pieces and flushed
  - OnProgress is called every ProgressInterval bytes

Once the writer fails it stays failed, and [TimeoutWriter.Err] reports
which limit was hit: [ErrWriteTimeout], [ErrClientGone] when the request
context ended, or [ErrStreamCanceled] after Close.

[ServeFile] is what the media handler uses. It runs http.ServeContent
through a TimeoutWriter, so range and conditional requests keep working:

	err := streaming.ServeFile(w, r, result.Path, streaming.DefaultTimeoutWriterConfig())
	if errors.Is(err, streaming.ErrClientGone) {
		return
	}
*/
package streaming
