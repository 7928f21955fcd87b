package frame

import (
	"io"
	"sync"
	"time"

	"github.com/framelink-protocol/framelink-go/pkg/log"
)

// writeReq is one queued frame: header, payload and optional trailing
// bytes, kept as separate slices so trailing bytes need not be copied.
// done, when non-nil, is closed once the request has been written (or
// abandoned because the writer stopped).
type writeReq struct {
	bufs [][]byte
	size int
	done chan struct{}
}

// Writer emits length-prefixed frames to an underlying writer through
// an internal queue drained by a single goroutine, so concurrent sends
// never interleave their bytes. A vanished peer never panics: the first
// write error flips the writer to stopped and subsequent sends return
// ErrWriterClosed.
type Writer struct {
	dst   io.Writer
	limit Limit

	mu      sync.Mutex
	wake    *sync.Cond
	queue   []writeReq
	pending int
	closed  bool
	werr    error

	stopped  chan struct{}
	stopOnce sync.Once

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewWriter creates a Writer over dst enforcing the given size limit
// and starts its write goroutine. Close the writer (or close the
// underlying connection) to release the goroutine.
func NewWriter(dst io.Writer, limit Limit) *Writer {
	w := &Writer{
		dst:     dst,
		limit:   limit,
		stopped: make(chan struct{}),
	}
	w.wake = sync.NewCond(&w.mu)
	go w.writeLoop()
	return w
}

// SetLogger configures protocol event logging for this writer.
// Pass nil to disable logging.
func (w *Writer) SetLogger(logger log.Logger, connID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger
	w.connID = connID
}

// Send queues one frame carrying payload. It returns nil once the frame
// is accepted, ErrWriterClosed if the writer is closed (zero bytes
// written), or a wrap of ErrMessageTooLarge if the payload exceeds the
// limit (zero bytes written; the writer stays usable). The payload is
// copied before Send returns, so the caller may reuse it immediately.
func (w *Writer) Send(payload []byte) error {
	if err := w.limit.Check(len(payload)); err != nil {
		return err
	}
	buf := make([]byte, HeaderSize+len(payload))
	PutHeader(buf, len(payload))
	copy(buf[HeaderSize:], payload)
	return w.enqueue(writeReq{bufs: [][]byte{buf}, size: len(buf)})
}

// SendTrailing queues one frame whose payload is followed by trailing
// raw bytes. The frame length covers both ranges and both are copied
// before SendTrailing returns.
func (w *Writer) SendTrailing(payload, trailing []byte) error {
	total := len(payload) + len(trailing)
	if err := w.limit.Check(total); err != nil {
		return err
	}
	buf := make([]byte, HeaderSize+total)
	PutHeader(buf, total)
	copy(buf[HeaderSize:], payload)
	copy(buf[HeaderSize+len(payload):], trailing)
	return w.enqueue(writeReq{bufs: [][]byte{buf}, size: len(buf)})
}

// SendNoCopy queues one frame whose payload is followed by trailing
// bytes that are handed to the writer without copying. The frame length
// covers len(payload)+len(trailing). Ownership of trailing transfers to
// the writer until the returned channel is closed; the caller must not
// reuse or free the buffer before then. The channel is also closed if
// the writer stops before transmitting, at which point the writer no
// longer references the buffer.
func (w *Writer) SendNoCopy(payload, trailing []byte) (<-chan struct{}, error) {
	total := len(payload) + len(trailing)
	if err := w.limit.Check(total); err != nil {
		return nil, err
	}
	head := make([]byte, HeaderSize+len(payload))
	PutHeader(head, total)
	copy(head[HeaderSize:], payload)

	done := make(chan struct{})
	req := writeReq{bufs: [][]byte{head, trailing}, size: len(head) + len(trailing), done: done}
	if err := w.enqueue(req); err != nil {
		return nil, err
	}
	return done, nil
}

// Close stops the writer: subsequent sends return ErrWriterClosed and
// Stopped resolves. Frames already queued are still flushed. Close is
// idempotent and never blocks on the network.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		w.wake.Broadcast()
	}
	w.mu.Unlock()
	w.markStopped()
	return nil
}

// IsClosed reports whether the writer accepts no more sends.
func (w *Writer) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// BytesPending returns the number of bytes queued but not yet written
// to the underlying writer.
func (w *Writer) BytesPending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Stopped returns a channel closed once the writer will accept no more
// writes, because of an explicit Close or because the peer vanished.
func (w *Writer) Stopped() <-chan struct{} {
	return w.stopped
}

// Flushed returns a channel closed once every byte queued at the time
// of the call has been written to the underlying writer, or abandoned
// because the writer stopped.
func (w *Writer) Flushed() <-chan struct{} {
	ch := make(chan struct{})
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == 0 {
		close(ch)
		return ch
	}
	w.queue = append(w.queue, writeReq{done: ch})
	w.wake.Signal()
	return ch
}

// Err returns the underlying write error that stopped the writer, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.werr
}

func (w *Writer) enqueue(req writeReq) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.queue = append(w.queue, req)
	w.pending += req.size
	w.wake.Signal()
	return nil
}

func (w *Writer) writeLoop() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.wake.Wait()
		}
		if len(w.queue) == 0 {
			// Closed with nothing left to flush.
			w.mu.Unlock()
			return
		}
		req := w.queue[0]
		w.queue = w.queue[1:]
		failed := w.werr != nil
		logger, connID := w.logger, w.connID
		w.mu.Unlock()

		var werr error
		if !failed {
			for _, buf := range req.bufs {
				if len(buf) == 0 {
					continue
				}
				if _, werr = w.dst.Write(buf); werr != nil {
					break
				}
			}
			if werr == nil && logger != nil && req.size > 0 {
				logFrame(logger, connID, req)
			}
		}

		w.mu.Lock()
		w.pending -= req.size
		if werr != nil && w.werr == nil {
			// Peer vanished or sink failed: stop accepting writes and
			// release everyone waiting, but never panic.
			w.werr = werr
			w.closed = true
		}
		w.mu.Unlock()
		if werr != nil {
			w.markStopped()
		}
		if req.done != nil {
			close(req.done)
		}
	}
}

func (w *Writer) markStopped() {
	w.stopOnce.Do(func() { close(w.stopped) })
}

func logFrame(logger log.Logger, connID string, req writeReq) {
	size := HeaderSize
	var data []byte
	truncated := false
	for i, buf := range req.bufs {
		if i == 0 {
			buf = buf[HeaderSize:]
		}
		size += len(buf)
		if room := log.MaxFrameDataSize - len(data); room > 0 {
			if len(buf) > room {
				buf = buf[:room]
				truncated = true
			}
			data = append(data, buf...)
		} else if len(buf) > 0 {
			truncated = true
		}
	}
	logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Category:     log.CategoryFrame,
		Frame: &log.FrameEvent{
			Size:      size,
			Data:      data,
			Truncated: truncated,
		},
	})
}
