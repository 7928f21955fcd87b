// Package frame implements the length-prefixed framing protocol of the
// framelink transport layer.
//
// A frame is a fixed 8-byte big-endian length header followed by exactly
// that many bytes of opaque payload. There is no in-band message-type
// tag; payload interpretation belongs to the layer above.
//
// The package provides:
//   - the header codec (PutHeader / ParseHeader)
//   - Limit, the maximum-message-size validator shared by both paths
//   - Reader, a chunked incremental parser with handler-driven flow
//     control (Continue / Stop / Wait) and per-batch backpressure
//   - Writer, a size-checked asynchronous frame writer with a zero-copy
//     trailing-bytes variant
//
// # Backpressure
//
// Reader delivers every complete frame found in one low-level read
// chunk, then waits for all asynchronous handler work started during
// that batch before issuing the next read. In-flight work is therefore
// bounded to one chunk's worth, trading some latency smoothing for a
// hard memory bound when handlers are slower than the network.
package frame
