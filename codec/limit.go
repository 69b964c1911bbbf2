package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrTooLarge is returned by Limit.Decode for payloads over the cap.
	ErrTooLarge = errors.New("codec: payload too large")
	errTrailing = errors.New("codec: trailing data after value")
)

// Limit caps the payload size Decode accepts before Inner sees it.
// Responses and shared-cache entries are untrusted input. Max <= 0 disables
// the cap. Encode is forwarded unchanged.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.Max)
	}
	return c.Inner.Decode(b)
}
