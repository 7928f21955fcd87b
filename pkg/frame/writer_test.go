package frame

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink is a thread-safe in-memory sink counting every byte
// written through it.
type recordingSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
}

func (s *recordingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	return s.buf.Write(p)
}

func (s *recordingSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// failingSink fails every write.
type failingSink struct{}

func (failingSink) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

// gatedSink blocks writes until released.
type gatedSink struct {
	release chan struct{}
	sink    recordingSink
}

func (s *gatedSink) Write(p []byte) (int, error) {
	<-s.release
	return s.sink.Write(p)
}

func awaitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestWriterSend(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, mustLimit(t, 1<<20))
	defer w.Close()

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte("z"), 1000),
	}

	var want []byte
	for _, p := range payloads {
		if err := w.Send(p); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		want = appendFrame(want, p)
	}
	awaitClosed(t, w.Flushed(), "flush")

	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("sink holds %d bytes, want %d", sink.Len(), len(want))
	}
	if w.BytesPending() != 0 {
		t.Errorf("BytesPending = %d after flush, want 0", w.BytesPending())
	}
}

func TestWriterSendCopiesPayload(t *testing.T) {
	gate := &gatedSink{release: make(chan struct{})}
	w := NewWriter(gate, mustLimit(t, 64))
	defer w.Close()

	payload := []byte("mutate me")
	if err := w.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// The caller may reuse the buffer immediately after Send returns.
	copy(payload, bytes.Repeat([]byte("#"), len(payload)))
	close(gate.release)
	awaitClosed(t, w.Flushed(), "flush")

	want := appendFrame(nil, []byte("mutate me"))
	if !bytes.Equal(gate.sink.Bytes(), want) {
		t.Error("written frame was affected by payload reuse")
	}
}

func TestWriterMessageTooLarge(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, mustLimit(t, 10))
	defer w.Close()

	err := w.Send(bytes.Repeat([]byte("x"), 11))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	awaitClosed(t, w.Flushed(), "flush")
	if sink.Len() != 0 {
		t.Errorf("rejected send wrote %d bytes, want 0", sink.Len())
	}

	// The writer stays usable.
	if err := w.Send([]byte("ok")); err != nil {
		t.Fatalf("Send after rejection failed: %v", err)
	}
	awaitClosed(t, w.Flushed(), "flush")
	if want := appendFrame(nil, []byte("ok")); !bytes.Equal(sink.Bytes(), want) {
		t.Error("frame after rejection mismatch")
	}
}

func TestWriterTrailingSizeAccounting(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, mustLimit(t, 10))
	defer w.Close()

	// 6 payload + 5 trailing = 11 > 10.
	err := w.SendTrailing([]byte("abcdef"), []byte("12345"))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	if _, err := w.SendNoCopy([]byte("abcdef"), []byte("12345")); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge from SendNoCopy, got %v", err)
	}
	awaitClosed(t, w.Flushed(), "flush")
	if sink.Len() != 0 {
		t.Errorf("rejected sends wrote %d bytes, want 0", sink.Len())
	}
}

func TestWriterSendTrailing(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, mustLimit(t, 64))
	defer w.Close()

	if err := w.SendTrailing([]byte("head"), []byte("tail")); err != nil {
		t.Fatalf("SendTrailing failed: %v", err)
	}
	awaitClosed(t, w.Flushed(), "flush")

	want := appendFrame(nil, []byte("headtail"))
	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("frame mismatch: got %x, want %x", sink.Bytes(), want)
	}
}

func TestWriterSendNoCopy(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, mustLimit(t, 1<<20))
	defer w.Close()

	trailing := bytes.Repeat([]byte("T"), 5000)
	flushed, err := w.SendNoCopy([]byte("prefix"), trailing)
	if err != nil {
		t.Fatalf("SendNoCopy failed: %v", err)
	}
	awaitClosed(t, flushed, "per-send flush")

	want := appendFrame(nil, append([]byte("prefix"), trailing...))
	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("frame mismatch: %d bytes, want %d", sink.Len(), len(want))
	}
}

func TestWriterClose(t *testing.T) {
	sink := &recordingSink{}
	w := NewWriter(sink, mustLimit(t, 64))

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if !w.IsClosed() {
		t.Error("IsClosed = false after Close")
	}
	awaitClosed(t, w.Stopped(), "stopped")

	if err := w.Send([]byte("late")); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Send after Close = %v, want ErrWriterClosed", err)
	}
	if _, err := w.SendNoCopy([]byte("late"), nil); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("SendNoCopy after Close = %v, want ErrWriterClosed", err)
	}
	if sink.Len() != 0 {
		t.Errorf("sends after Close wrote %d bytes, want 0", sink.Len())
	}
}

func TestWriterBytesPending(t *testing.T) {
	gate := &gatedSink{release: make(chan struct{})}
	w := NewWriter(gate, mustLimit(t, 64))
	defer w.Close()

	if err := w.Send([]byte("queued")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got, want := w.BytesPending(), HeaderSize+len("queued"); got != want {
		t.Errorf("BytesPending = %d, want %d", got, want)
	}

	close(gate.release)
	awaitClosed(t, w.Flushed(), "flush")
	if w.BytesPending() != 0 {
		t.Errorf("BytesPending = %d after flush, want 0", w.BytesPending())
	}
}

func TestWriterPeerVanished(t *testing.T) {
	w := NewWriter(failingSink{}, mustLimit(t, 64))

	// The first send hits the dead sink; the writer must convert that
	// into ordinary stopped/closed signaling, never a crash.
	if err := w.Send([]byte("doomed")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	awaitClosed(t, w.Stopped(), "stopped")

	if err := w.Send([]byte("after")); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Send after failure = %v, want ErrWriterClosed", err)
	}
	if w.Err() == nil {
		t.Error("Err() = nil, want the underlying write error")
	}
	if !w.IsClosed() {
		t.Error("IsClosed = false after write failure")
	}
}

func TestWriterNoCopyReleasedOnFailure(t *testing.T) {
	w := NewWriter(failingSink{}, mustLimit(t, 64))

	flushed, err := w.SendNoCopy([]byte("a"), []byte("bbb"))
	if err != nil {
		t.Fatalf("SendNoCopy failed: %v", err)
	}
	// Even though the bytes were never transmitted, the flush channel
	// must close so the caller can reclaim the buffer.
	awaitClosed(t, flushed, "no-copy flush release")
	awaitClosed(t, w.Stopped(), "stopped")
}
