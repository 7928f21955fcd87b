package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelink-protocol/framelink-go/pkg/frame"
)

func TestConnectRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	lis, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	start := time.Now()
	_, _, err = Connect(context.Background(), addr, testConfig())
	elapsed := time.Since(start)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, addr, connErr.Addr)
	assert.Less(t, elapsed, 5*time.Second, "refusal must not hang")
}

func TestConnectTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 100 * time.Millisecond

	// Reserved TEST-NET-1 address: packets go nowhere, so the dial can
	// only end by timeout.
	start := time.Now()
	_, _, err := Connect(context.Background(), "192.0.2.1:9", cfg)
	elapsed := time.Since(start)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Less(t, elapsed, 5*time.Second, "timeout must be bounded")
}

func TestConnectHonorsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	cfg := testConfig()
	cfg.ConnectTimeout = time.Hour // the context deadline must win

	start := time.Now()
	_, _, err := Connect(ctx, "192.0.2.1:9", cfg)
	elapsed := time.Since(start)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestConnectInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = -1

	_, _, err := Connect(context.Background(), "localhost:1", cfg)
	require.ErrorIs(t, err, frame.ErrNegativeLimit)

	var connErr *ConnectError
	assert.False(t, errors.As(err, &connErr), "config errors are not connect errors")
}

func TestConnectReturnsPeerAddress(t *testing.T) {
	srv := startEchoServer(t, testConfig())

	tp, peer, err := Connect(context.Background(), srv.Addr().String(), testConfig())
	require.NoError(t, err)
	defer tp.Close()

	require.Equal(t, srv.Addr().String(), peer.String())
	require.Equal(t, peer.String(), tp.RemoteAddr().String())
}
