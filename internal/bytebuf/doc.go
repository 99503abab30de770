// Package bytebuf provides Accumulator, an append-only byte buffer that is
// built incrementally from single bytes, slices, or a streaming source.
//
// Streams are consumed in 4 KiB chunks. Read errors end the stream quietly:
// the accumulator keeps whatever arrived before the failure, which is what the
// cache pipeline wants when it sniffs the head of a partially readable source.
//
//	acc := bytebuf.New()
//	n := acc.AppendFrom(resp.Body) // closes resp.Body
//	head := acc.Bytes()
package bytebuf
