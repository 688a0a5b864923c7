// Package bcs implements the subset of Binary Canonical Serialization needed
// to build Aptos entry function transactions.
package bcs

import (
	"bytes"
	"encoding/binary"

	"github.com/equinox-racing/racebot/internal/bytespool"
)

// Marshaler writes its canonical encoding into a Serializer.
type Marshaler interface {
	MarshalBCS(s *Serializer)
}

type Serializer struct {
	buf *bytes.Buffer
}

// Serialize encodes m into a freshly allocated slice.
func Serialize(m Marshaler) []byte {
	buf := bytespool.Get()
	defer bytespool.Put(buf)

	m.MarshalBCS(&Serializer{buf: buf})

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func (s *Serializer) U8(v uint8) {
	s.buf.WriteByte(v)
}

func (s *Serializer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.buf.Write(b[:])
}

// Uleb128 writes v as an unsigned LEB128, used for lengths and enum tags.
func (s *Serializer) Uleb128(v uint32) {
	for v >= 0x80 {
		s.buf.WriteByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	s.buf.WriteByte(byte(v))
}

// FixedBytes writes b without a length prefix.
func (s *Serializer) FixedBytes(b []byte) {
	s.buf.Write(b)
}

// Bytes writes b prefixed with its length.
func (s *Serializer) Bytes(b []byte) {
	s.Uleb128(uint32(len(b)))
	s.buf.Write(b)
}

func (s *Serializer) Str(v string) {
	s.Bytes([]byte(v))
}

func (s *Serializer) Struct(m Marshaler) {
	m.MarshalBCS(s)
}

// SerializeU64 is the encoding of a single u64 entry function argument.
func SerializeU64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}
