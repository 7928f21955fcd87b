package frame

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the size of the fixed frame header in bytes.
// The header holds the payload length as a big-endian unsigned integer.
const HeaderSize = 8

// PutHeader writes the header for a payload of length n into buf.
// buf must be at least HeaderSize bytes; n must be non-negative.
func PutHeader(buf []byte, n int) {
	binary.BigEndian.PutUint64(buf, uint64(n))
}

// ParseHeader decodes the payload length from the first HeaderSize bytes
// of buf. Lengths that do not fit in int on this platform are rejected.
func ParseHeader(buf []byte) (int, error) {
	v := binary.BigEndian.Uint64(buf)
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: declared length %d overflows addressable size", ErrMessageTooLarge, v)
	}
	return int(v), nil
}
