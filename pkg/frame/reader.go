package frame

import (
	"io"
	"time"

	"github.com/framelink-protocol/framelink-go/pkg/log"
)

// readChunkSize is the minimum size of a low-level read request. Reads
// that must complete a known-length partial frame are sized to finish
// that exact frame instead.
const readChunkSize = 4096

type decisionKind uint8

const (
	decisionContinue decisionKind = iota
	decisionStop
	decisionWait
)

// Decision is the handler's verdict on one delivered message. Build it
// with Continue, Stop, or Wait; the zero value behaves like Continue().
type Decision struct {
	kind decisionKind
	stop any
	done <-chan struct{}
}

// Continue tells the reader to parse the next frame in the same chunk.
func Continue() Decision {
	return Decision{kind: decisionContinue}
}

// Stop terminates the whole read operation immediately; v is returned
// to the caller of ReadMessages. Used to hand control back for one-shot
// extraction, e.g. protocol negotiation.
func Stop(v any) Decision {
	return Decision{kind: decisionStop, stop: v}
}

// Wait signals that the handler has begun asynchronous work that
// finishes when done is closed. Parsing of the current chunk continues
// without waiting; the reader suspends at the end of the batch until
// every such done channel has been closed. A nil channel is treated as
// already resolved.
func Wait(done <-chan struct{}) Decision {
	return Decision{kind: decisionWait, done: done}
}

// Handler consumes one frame payload and decides how the read operation
// proceeds. The payload slice is only valid for the duration of the
// call: it aliases the reader's internal buffer.
type Handler func(payload []byte) Decision

// Reader incrementally parses a byte stream into length-prefixed frames
// with handler-driven flow control. It issues one low-level read at a
// time and guarantees that no frame is ever split or duplicated across
// handler invocations. Not safe for concurrent use.
type Reader struct {
	src   io.Reader
	limit Limit

	buf   []byte
	start int
	end   int

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewReader creates a Reader over src enforcing the given size limit.
func NewReader(src io.Reader, limit Limit) *Reader {
	return &Reader{src: src, limit: limit}
}

// SetLogger configures protocol event logging for this reader.
// Pass nil to disable logging.
func (r *Reader) SetLogger(logger log.Logger, connID string) {
	r.logger = logger
	r.connID = connID
}

// ReadMessages runs one read operation: it reads chunks from the
// source, delivers each complete frame payload to handler, and returns
// once the handler stops the operation or the operation fails.
//
// onBatchEnd, if non-nil, is invoked exactly once per chunk, after the
// chunk has been parsed as far as possible. The reader then waits for
// every unresolved Wait decision collected during that batch before
// requesting the next chunk; this bounds in-flight handler work to one
// batch and is the backpressure valve between a fast producer and a
// slow consumer.
//
// The returned count is the number of bytes consumed as whole frames
// since the call began. The any value is the Stop payload; it is nil
// when err is non-nil. If the declared length of a frame violates the
// size limit the operation fails with a wrap of ErrMessageTooLarge and
// the connection must be torn down. If the source ends before a Stop,
// the operation fails with ErrStreamEnded.
func (r *Reader) ReadMessages(handler Handler, onBatchEnd func()) (int64, any, error) {
	var consumed int64

	// need is how many more bytes the next low-level read must obtain
	// to make progress on the current (possibly partial) frame.
	need := HeaderSize

	for {
		var pending []<-chan struct{}
		var stopValue any
		stopped := false
		delivered := 0

		for {
			avail := r.end - r.start
			if avail < HeaderSize {
				need = HeaderSize - avail
				break
			}

			length, err := ParseHeader(r.buf[r.start : r.start+HeaderSize])
			if err == nil {
				err = r.limit.Check(length)
			}
			if err != nil {
				// Size violation is fatal to the whole read operation.
				return consumed, nil, err
			}

			total := HeaderSize + length
			if avail < total {
				need = total - avail
				break
			}

			payload := r.buf[r.start+HeaderSize : r.start+total]
			r.start += total
			consumed += int64(total)
			delivered++
			r.logFrame(payload)

			d := handler(payload)
			switch d.kind {
			case decisionStop:
				stopValue = d.stop
				stopped = true
			case decisionWait:
				if d.done != nil {
					select {
					case <-d.done:
					default:
						pending = append(pending, d.done)
					}
				}
			}
			if stopped {
				break
			}
		}

		// An empty batch over an empty buffer happens only before the
		// first read of a chunk; it is not a batch.
		if onBatchEnd != nil && (delivered > 0 || r.end > r.start) {
			onBatchEnd()
		}
		for _, done := range pending {
			<-done
		}

		if stopped {
			return consumed, stopValue, nil
		}

		if err := r.fill(need); err != nil {
			return consumed, nil, err
		}
	}
}

// fill issues a single low-level read sized to obtain at least need
// bytes beyond what is buffered. A short read is not retried here; the
// caller re-parses and comes back with an updated need.
func (r *Reader) fill(need int) error {
	if r.start > 0 {
		if r.start == r.end {
			r.start, r.end = 0, 0
		} else if len(r.buf)-r.end < need {
			// Move the partial frame to the front to reclaim space.
			copy(r.buf, r.buf[r.start:r.end])
			r.end -= r.start
			r.start = 0
		}
	}

	want := need
	if want < readChunkSize {
		want = readChunkSize
	}
	if len(r.buf)-r.end < want {
		grown := make([]byte, r.end+want)
		copy(grown, r.buf[:r.end])
		r.buf = grown
	}

	n, err := r.src.Read(r.buf[r.end : r.end+want])
	r.end += n
	if n > 0 {
		// Deliver what we got; a lingering error resurfaces on the
		// next fill.
		return nil
	}
	if err == io.EOF {
		return ErrStreamEnded
	}
	if err != nil {
		return err
	}
	return nil
}

func (r *Reader) logFrame(payload []byte) {
	if r.logger == nil {
		return
	}
	data := payload
	truncated := false
	if len(data) > log.MaxFrameDataSize {
		data = data[:log.MaxFrameDataSize]
		truncated = true
	}
	r.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: r.connID,
		Direction:    log.DirectionIn,
		Category:     log.CategoryFrame,
		Frame: &log.FrameEvent{
			Size:      HeaderSize + len(payload),
			Data:      data,
			Truncated: truncated,
		},
	})
}
