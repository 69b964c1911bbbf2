package codec

import (
	"bytes"
	"encoding/json"
)

// JSON encodes with encoding/json. With Strict set, Decode rejects unknown
// fields and trailing data, which is how remote responses are validated.
type JSON[V any] struct {
	Strict bool
}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (c JSON[V]) Decode(b []byte) (V, error) {
	var v V
	if !c.Strict {
		err := json.Unmarshal(b, &v)
		return v, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if dec.More() {
		var zero V
		return zero, errTrailing
	}
	return v, nil
}
