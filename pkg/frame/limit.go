package frame

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

const (
	// DefaultMaxMessageSize is the fallback maximum message size (100 MiB)
	// used when no explicit limit or environment override is configured.
	DefaultMaxMessageSize = 100 << 20

	// MaxMessageSizeEnv is the environment variable consulted by
	// MaxMessageSizeFromEnv for the default message size limit.
	MaxMessageSizeEnv = "FRAMELINK_MAX_MESSAGE_SIZE"
)

// Framing errors.
var (
	// ErrNegativeLimit indicates a negative message size limit was configured.
	ErrNegativeLimit = errors.New("negative message size limit")

	// ErrMessageTooLarge indicates a payload length outside the configured limit.
	// On the read path this is fatal to the read operation; on the write path it
	// is an ordinary result and the writer stays usable.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrWriterClosed indicates a send was attempted on a closed writer.
	ErrWriterClosed = errors.New("writer closed")

	// ErrStreamEnded indicates the byte source ended before the handler
	// stopped the read operation.
	ErrStreamEnded = errors.New("stream ended before read completed")
)

// MaxMessageSizeFromEnv returns the default message size limit, honoring
// the FRAMELINK_MAX_MESSAGE_SIZE environment override with a fixed
// fallback. Call it once at startup when building a configuration; the
// result is threaded explicitly, never cached globally.
func MaxMessageSizeFromEnv() int {
	if v := os.Getenv(MaxMessageSizeEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return DefaultMaxMessageSize
}

// Limit validates payload lengths against an immutable maximum message
// size. The zero value permits only empty payloads.
type Limit struct {
	max int
}

// NewLimit creates a Limit with the given maximum message size.
// Fails with ErrNegativeLimit if max is negative.
func NewLimit(max int) (Limit, error) {
	if max < 0 {
		return Limit{}, fmt.Errorf("%w: %d", ErrNegativeLimit, max)
	}
	return Limit{max: max}, nil
}

// Max returns the configured maximum message size.
func (l Limit) Max() int {
	return l.max
}

// Ok reports whether a payload of n bytes is within the limit.
func (l Limit) Ok(n int) bool {
	return n >= 0 && n <= l.max
}

// Check returns an error wrapping ErrMessageTooLarge if a payload of
// n bytes is outside the limit.
func (l Limit) Check(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative length %d", ErrMessageTooLarge, n)
	}
	if n > l.max {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, l.max)
	}
	return nil
}
