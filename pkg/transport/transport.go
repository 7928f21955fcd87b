package transport

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framelink-protocol/framelink-go/pkg/frame"
	"github.com/framelink-protocol/framelink-go/pkg/log"
)

// Transport owns exactly one frame reader and one frame writer bound to
// the same underlying connection. It is created when a socket is
// accepted or a connect succeeds, and closed exactly once, either
// explicitly or by the connection layer when the owning handler
// finishes. Closing is idempotent.
type Transport struct {
	conn   net.Conn
	reader *frame.Reader
	writer *frame.Writer
	connID string
	logger log.Logger

	closeOnce sync.Once
	closeErr  error
}

func newTransport(conn net.Conn, limit frame.Limit, logger log.Logger) *Transport {
	t := &Transport{
		conn:   conn,
		reader: frame.NewReader(conn, limit),
		writer: frame.NewWriter(conn, limit),
		connID: uuid.New().String(),
		logger: logger,
	}
	if logger != nil {
		t.reader.SetLogger(logger, t.connID)
		t.writer.SetLogger(logger, t.connID)
	}
	return t
}

// ConnID returns the unique connection identifier.
func (t *Transport) ConnID() string {
	return t.connID
}

// Reader returns the frame reader for this connection.
func (t *Transport) Reader() *frame.Reader {
	return t.reader
}

// Writer returns the frame writer for this connection.
func (t *Transport) Writer() *frame.Writer {
	return t.writer
}

// LocalAddr returns the local network address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Close closes the transport: the writer stops accepting sends and the
// underlying connection is closed, so any in-progress or future read
// observes closure on its next step. Safe to call multiple times.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.writer.Close()
		t.closeErr = t.conn.Close()
		t.logState("CONNECTED", "DISCONNECTED")
	})
	return t.closeErr
}

func (t *Transport) logState(oldState, newState string) {
	if t.logger == nil {
		return
	}
	t.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: t.connID,
		Category:     log.CategoryState,
		RemoteAddr:   t.conn.RemoteAddr().String(),
		StateChange: &log.StateChangeEvent{
			OldState: oldState,
			NewState: newState,
		},
	})
}
