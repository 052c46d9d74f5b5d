package mix

import "encoding/binary"

// BlockSize is the size of one Salsa20/8 block.
const BlockSize = 64

// Salsa208 applies the Salsa20/8 core to b in place.
// The block is read as sixteen little-endian uint32 words, run through four
// double rounds, added word-wise to the input and written back.
func Salsa208(b *[BlockSize]byte) {
	w0 := binary.LittleEndian.Uint32(b[0:])
	w1 := binary.LittleEndian.Uint32(b[4:])
	w2 := binary.LittleEndian.Uint32(b[8:])
	w3 := binary.LittleEndian.Uint32(b[12:])
	w4 := binary.LittleEndian.Uint32(b[16:])
	w5 := binary.LittleEndian.Uint32(b[20:])
	w6 := binary.LittleEndian.Uint32(b[24:])
	w7 := binary.LittleEndian.Uint32(b[28:])
	w8 := binary.LittleEndian.Uint32(b[32:])
	w9 := binary.LittleEndian.Uint32(b[36:])
	w10 := binary.LittleEndian.Uint32(b[40:])
	w11 := binary.LittleEndian.Uint32(b[44:])
	w12 := binary.LittleEndian.Uint32(b[48:])
	w13 := binary.LittleEndian.Uint32(b[52:])
	w14 := binary.LittleEndian.Uint32(b[56:])
	w15 := binary.LittleEndian.Uint32(b[60:])

	x0, x1, x2, x3, x4, x5, x6, x7, x8 := w0, w1, w2, w3, w4, w5, w6, w7, w8
	x9, x10, x11, x12, x13, x14, x15 := w9, w10, w11, w12, w13, w14, w15

	for i := 0; i < 8; i += 2 {
		// columns
		u := x0 + x12
		x4 ^= u<<7 | u>>(32-7)
		u = x4 + x0
		x8 ^= u<<9 | u>>(32-9)
		u = x8 + x4
		x12 ^= u<<13 | u>>(32-13)
		u = x12 + x8
		x0 ^= u<<18 | u>>(32-18)

		u = x5 + x1
		x9 ^= u<<7 | u>>(32-7)
		u = x9 + x5
		x13 ^= u<<9 | u>>(32-9)
		u = x13 + x9
		x1 ^= u<<13 | u>>(32-13)
		u = x1 + x13
		x5 ^= u<<18 | u>>(32-18)

		u = x10 + x6
		x14 ^= u<<7 | u>>(32-7)
		u = x14 + x10
		x2 ^= u<<9 | u>>(32-9)
		u = x2 + x14
		x6 ^= u<<13 | u>>(32-13)
		u = x6 + x2
		x10 ^= u<<18 | u>>(32-18)

		u = x15 + x11
		x3 ^= u<<7 | u>>(32-7)
		u = x3 + x15
		x7 ^= u<<9 | u>>(32-9)
		u = x7 + x3
		x11 ^= u<<13 | u>>(32-13)
		u = x11 + x7
		x15 ^= u<<18 | u>>(32-18)

		// rows
		u = x0 + x3
		x1 ^= u<<7 | u>>(32-7)
		u = x1 + x0
		x2 ^= u<<9 | u>>(32-9)
		u = x2 + x1
		x3 ^= u<<13 | u>>(32-13)
		u = x3 + x2
		x0 ^= u<<18 | u>>(32-18)

		u = x5 + x4
		x6 ^= u<<7 | u>>(32-7)
		u = x6 + x5
		x7 ^= u<<9 | u>>(32-9)
		u = x7 + x6
		x4 ^= u<<13 | u>>(32-13)
		u = x4 + x7
		x5 ^= u<<18 | u>>(32-18)

		u = x10 + x9
		x11 ^= u<<7 | u>>(32-7)
		u = x11 + x10
		x8 ^= u<<9 | u>>(32-9)
		u = x8 + x11
		x9 ^= u<<13 | u>>(32-13)
		u = x9 + x8
		x10 ^= u<<18 | u>>(32-18)

		u = x15 + x14
		x12 ^= u<<7 | u>>(32-7)
		u = x12 + x15
		x13 ^= u<<9 | u>>(32-9)
		u = x13 + x12
		x14 ^= u<<13 | u>>(32-13)
		u = x14 + x13
		x15 ^= u<<18 | u>>(32-18)
	}

	binary.LittleEndian.PutUint32(b[0:], x0+w0)
	binary.LittleEndian.PutUint32(b[4:], x1+w1)
	binary.LittleEndian.PutUint32(b[8:], x2+w2)
	binary.LittleEndian.PutUint32(b[12:], x3+w3)
	binary.LittleEndian.PutUint32(b[16:], x4+w4)
	binary.LittleEndian.PutUint32(b[20:], x5+w5)
	binary.LittleEndian.PutUint32(b[24:], x6+w6)
	binary.LittleEndian.PutUint32(b[28:], x7+w7)
	binary.LittleEndian.PutUint32(b[32:], x8+w8)
	binary.LittleEndian.PutUint32(b[36:], x9+w9)
	binary.LittleEndian.PutUint32(b[40:], x10+w10)
	binary.LittleEndian.PutUint32(b[44:], x11+w11)
	binary.LittleEndian.PutUint32(b[48:], x12+w12)
	binary.LittleEndian.PutUint32(b[52:], x13+w13)
	binary.LittleEndian.PutUint32(b[56:], x14+w14)
	binary.LittleEndian.PutUint32(b[60:], x15+w15)
}
