package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores generated protobuf messages. ctor returns an empty message
// to decode into, e.g. func() *pb.Node { return new(pb.Node) }.
type Protobuf[T proto.Message] struct {
	ctor func() T
	opts proto.MarshalOptions
}

// NewProtobuf returns a Protobuf codec. Deterministic encoding keeps equal
// messages byte-identical in the provider.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor, opts: proto.MarshalOptions{Deterministic: true}}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return c.opts.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.ctor()
	err := proto.Unmarshal(b, m)
	return m, err
}
