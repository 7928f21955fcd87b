package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"syscall"
)

// ConnectError reports a failed connection attempt: dial timeout or
// refusal, TLS handshake failure, or post-connect peer verification
// failure. It is returned as an ordinary result, never raised.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Connect opens a connection to address and returns the transport and
// the peer address. The connect phase is bounded by cfg.ConnectTimeout
// when ctx carries no deadline. Immediately after a successful dial the
// peer endpoint is verified to still be resolvable; this guards against
// the race where the remote reset the connection between dial
// completion and use. On verification failure the socket is forcibly
// shut down and the underlying error is reported instead of returning a
// half-open transport. Verification failures are not retried here; that
// is the caller's call.
func Connect(ctx context.Context, address string, cfg Config) (*Transport, net.Addr, error) {
	limit, err := cfg.limit()
	if err != nil {
		return nil, nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.connectTimeout())
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, nil, &ConnectError{Addr: address, Err: err}
	}

	if err := verifyPeer(conn); err != nil {
		abortConn(conn)
		return nil, nil, &ConnectError{Addr: address, Err: err}
	}

	if cfg.TLSConfig != nil {
		tlsConn := tls.Client(conn, cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, nil, &ConnectError{Addr: address, Err: fmt.Errorf("TLS handshake failed: %w", err)}
		}
		conn = tlsConn
	}

	t := newTransport(conn, limit, cfg.Logger)
	return t, conn.RemoteAddr(), nil
}

// verifyPeer checks that the socket still has a resolvable peer
// endpoint, via getpeername on the raw descriptor. A connection the
// remote already reset fails here instead of on first use.
func verifyPeer(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var verr error
	if err := raw.Control(func(fd uintptr) {
		_, verr = syscall.Getpeername(int(fd))
	}); err != nil {
		return err
	}
	if verr != nil {
		return fmt.Errorf("peer verification failed: %w", verr)
	}
	return nil
}

// abortConn shuts the socket down hard so the kernel does not linger on
// a connection we already know is dead.
func abortConn(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetLinger(0)
	}
	conn.Close()
}
