// Package blocksum computes a per-block SHA-256 signature of a file.
//
// The input is split into fixed-size sequential blocks (the last one may be
// shorter). Blocks are hashed concurrently and one result per block is emitted
// strictly in block order, although hashing finishes in arbitrary order.
//
// Entry points
//   - Run(ctx, reader, size, emitter, opts...): hash size bytes from any io.Reader.
//   - RunFile(ctx, path, emitter, opts...): hash a regular file.
//
// Pipeline
//
//	reader ──(bounded channel)──> hashers (N) ──Insert──> OrderedSink ──Emit──> Emitter
//
//   - One reader goroutine assigns dense sequence numbers 0..BlockCount-1 and blocks
//     when the channel is full.
//   - N interchangeable hasher goroutines pull blocks, digest them and return the
//     payload buffer to the pool before forwarding the result.
//   - The OrderedSink is a monitor with a window of W slots. Results ahead of the
//     window block their worker; contiguous results are emitted immediately.
//   - A Bus carries cancellation. Every blocking point observes it, and the first
//     fault anywhere signals it exactly once.
//
// Defaults
// Unless overridden, the following defaults apply:
//   - BlockSize: 1 MiB
//   - Workers: max(1, NumCPU-1)
//   - QueueSize: same as Workers
//   - Window: NumCPU
//   - Buffer pool: fixed (QueueSize+Workers+1 buffers at most)
//   - ShutdownTimeout: 1s
//   - Logger: discards everything; Metrics: no-op
//
// Output
// LineWriter renders "<seq> <digest>" lines with hex (default) or base64
// digests; ParseLine inverts it.
package blocksum
