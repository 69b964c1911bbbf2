// Package wire frames entities stored in a byte provider.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("viewcache: corrupt entry")
	magic4     = [...]byte{'V', 'C', 'E', 'N'}
)

// Entry is one framed entity.
type Entry struct {
	Epoch   uint64
	Key     string // cache key, checked on read against the key asked for
	Payload []byte
}

const header = 4 + 1 + 8 + 2 // magic | ver | epoch | keyLen

// Encode frames e:
//
//	magic(4) | ver(1) | epoch(u64 be) | keyLen(u16 be) | key | vlen(u32 be) | payload
//
// Keys longer than 64KiB and payloads over 4GiB cannot be framed.
func Encode(e Entry) ([]byte, error) {
	if len(e.Key) > math.MaxUint16 || uint64(len(e.Payload)) > math.MaxUint32 {
		return nil, ErrCorrupt
	}
	var buf bytes.Buffer
	buf.Grow(header + len(e.Key) + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	binary.BigEndian.PutUint64(u8[:], e.Epoch)
	buf.Write(u8[:])

	var u2 [2]byte
	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Key)))
	buf.Write(u2[:])
	buf.WriteString(e.Key)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// Decode parses a frame written by Encode. The payload aliases b.
// Any bytes past the payload make the frame corrupt.
func Decode(b []byte) (Entry, error) {
	if len(b) < header || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 5

	epoch := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	klen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if klen > len(b)-off {
		return Entry{}, ErrCorrupt
	}
	key := string(b[off : off+klen])
	off += klen

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}
	return Entry{Epoch: epoch, Key: key, Payload: b[off:]}, nil
}
