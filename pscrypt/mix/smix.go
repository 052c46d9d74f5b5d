package mix

import (
	"encoding/binary"
	"errors"
)

var (
	ErrBlockSize   = errors.New("mix: block length must be 128*r")
	ErrScratchSize = errors.New("mix: scratch too small for N and r")
)

// Scratch holds the private buffers of one SMix caller: the table V of N
// slots and the working buffer XY (X followed by BlockMix's Y).
// Buffers are sized for a specific (N, r) and may be reused for any smaller
// pair.
type Scratch struct {
	V  []byte
	XY []byte
}

// NewScratch allocates a scratch of N*128*r bytes for V and 256*r bytes for XY.
func NewScratch(n, r int) *Scratch {
	return &Scratch{
		V:  make([]byte, n*128*r),
		XY: make([]byte, 256*r),
	}
}

// Fits reports whether s can serve SMix for the given N and r.
func (s *Scratch) Fits(n, r int) bool {
	return s != nil && len(s.V) >= n*128*r && len(s.XY) >= 256*r
}

// Size returns the number of bytes held by s.
func (s *Scratch) Size() int {
	if s == nil {
		return 0
	}
	return len(s.V) + len(s.XY)
}

// Wipe zeroes both buffers.
func (s *Scratch) Wipe() {
	clear(s.V)
	clear(s.XY)
}

// integerify returns the first little-endian uint32 of the last 64-byte
// block of x, i.e. block 2r-1.
func integerify(x []byte, r int) uint32 {
	return binary.LittleEndian.Uint32(x[(2*r-1)*BlockSize:])
}

// SMix runs scrypt's ROMix over the 128*r bytes of b in place. n must be a
// power of two. s must satisfy s.Fits(n, r).
func SMix(b []byte, r, n int, s *Scratch) {
	blockLen := 128 * r
	x := s.XY[:blockLen]
	y := s.XY[blockLen : 2*blockLen]
	v := s.V

	copy(x, b[:blockLen])

	for i := 0; i < n; i++ {
		copy(v[i*blockLen:], x)
		BlockMix(x, y, r)
	}

	mask := uint32(n - 1)
	for i := 0; i < n; i++ {
		j := int(integerify(x, r) & mask)
		blockXOR(x, v[j*blockLen:], blockLen)
		BlockMix(x, y, r)
	}

	copy(b, x)
}

// MixBlock validates the sizes of b and s before calling SMix. It is the
// entry point used by workers that receive blocks from elsewhere.
func MixBlock(b []byte, r, n int, s *Scratch) error {
	if len(b) != 128*r {
		return ErrBlockSize
	}
	if !s.Fits(n, r) {
		return ErrScratchSize
	}
	SMix(b, r, n, s)
	return nil
}
