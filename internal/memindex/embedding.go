package memindex

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrMemoryNotFound is returned by Store reads/writes that target a
// row that does not exist or is soft-deleted.
var ErrMemoryNotFound = errors.New("memindex: memory not found")

// marshalEmbedding packs a float32 vector into a little-endian BLOB for
// storage, a fixed-width binary column rather than a vector extension
// (spec §3.6: embedding is an opaque vector; no specific on-disk format
// is mandated).
func marshalEmbedding(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

func unmarshalEmbedding(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, errors.New("memindex: corrupt embedding blob")
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
