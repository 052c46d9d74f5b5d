package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrMalformedMix = errors.New("protocol: malformed mix payload")

// MixRequest asks a server to run SMix over one block.
//
//	N(4) | r(4) | index(4) | block(128r)
type MixRequest struct {
	N     uint32
	R     uint32
	Index uint32
	Block []byte
}

// MixResult carries the mixed block back.
//
//	index(4) | block(128r)
type MixResult struct {
	Index uint32
	Block []byte
}

func (m MixRequest) Marshal() []byte {
	b := make([]byte, 12+len(m.Block))
	binary.BigEndian.PutUint32(b[0:], m.N)
	binary.BigEndian.PutUint32(b[4:], m.R)
	binary.BigEndian.PutUint32(b[8:], m.Index)
	copy(b[12:], m.Block)
	return b
}

// UnmarshalMixRequest parses a request. The block aliases b.
func UnmarshalMixRequest(b []byte) (MixRequest, error) {
	if len(b) < 12 {
		return MixRequest{}, ErrMalformedMix
	}
	m := MixRequest{
		N:     binary.BigEndian.Uint32(b[0:]),
		R:     binary.BigEndian.Uint32(b[4:]),
		Index: binary.BigEndian.Uint32(b[8:]),
		Block: b[12:],
	}
	if m.R == 0 || uint64(len(m.Block)) != 128*uint64(m.R) {
		return MixRequest{}, errors.Wrapf(ErrMalformedMix, "block of %d bytes for r=%d", len(m.Block), m.R)
	}
	return m, nil
}

func (m MixResult) Marshal() []byte {
	b := make([]byte, 4+len(m.Block))
	binary.BigEndian.PutUint32(b, m.Index)
	copy(b[4:], m.Block)
	return b
}

// UnmarshalMixResult parses a result. The block aliases b.
func UnmarshalMixResult(b []byte) (MixResult, error) {
	if len(b) < 4 {
		return MixResult{}, ErrMalformedMix
	}
	return MixResult{Index: binary.BigEndian.Uint32(b), Block: b[4:]}, nil
}
