package mix

// blockXOR XORs n bytes of src into dst.
func blockXOR(dst, src []byte, n int) {
	dst = dst[:n]
	for i, v := range src[:n] {
		dst[i] ^= v
	}
}

// BlockMix applies scrypt's BlockMix_{Salsa20/8, r} to the 128*r bytes of b in
// place. y is scratch space of at least 128*r bytes; its contents are clobbered.
//
// Output block i lands at position i/2 when i is even and r+i/2 when i is odd.
func BlockMix(b, y []byte, r int) {
	var x [BlockSize]byte

	copy(x[:], b[(2*r-1)*BlockSize:2*r*BlockSize])

	for i := 0; i < 2*r; i++ {
		blockXOR(x[:], b[i*BlockSize:], BlockSize)
		Salsa208(&x)
		copy(y[i*BlockSize:], x[:])
	}

	for i := 0; i < r; i++ {
		copy(b[i*BlockSize:(i+1)*BlockSize], y[2*i*BlockSize:(2*i+1)*BlockSize])
	}
	for i := 0; i < r; i++ {
		copy(b[(i+r)*BlockSize:(i+r+1)*BlockSize], y[(2*i+1)*BlockSize:(2*i+2)*BlockSize])
	}
}
