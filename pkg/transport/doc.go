// Package transport provides the connection layer of the framelink
// stack: TCP listen/accept and connect, building one Transport (a
// size-limited frame reader/writer pair) per connection.
//
// # Server side
//
// Listen binds an address and invokes the caller's handler once per
// accepted connection. An auth predicate gates acceptance by client
// address; rejected sockets are closed silently and never reach the
// handler. Each handler runs inside an isolated failure scope: a
// failure (or panic) in one connection's handler cannot terminate the
// listener or other connections, and is routed to the configured
// error callback instead of being swallowed. The transport is always
// closed after the handler returns, regardless of outcome.
//
// # Client side
//
// Connect opens a socket with a bounded timeout and verifies the peer
// endpoint is still resolvable before handing out the transport, so a
// remote that reset the connection right after the dial completes is
// reported as a connect failure rather than a half-open transport.
//
// # Out of scope
//
// Read/write deadlines, heartbeats and reconnect policy belong to the
// caller; this layer only times out the connect phase.
package transport
