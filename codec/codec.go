// Package codec turns cached entities into bytes for provider-backed stores
// and decodes collaborator responses.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ForName returns the codec registered under name: "json", "msgpack" or "cbor".
// Config files select the storage codec by name.
func ForName[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSON[V]{}, nil
	case "msgpack":
		return Msgpack[V]{}, nil
	case "cbor":
		c, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
