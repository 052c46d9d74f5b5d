package mix

import (
	"bytes"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/salsa20/salsa"
)

func TestSalsa208MatchesCore208(t *testing.T) {
	for i := 0; i < 64; i++ {
		var in [BlockSize]byte
		if _, err := rand.Read(in[:]); err != nil {
			t.Fatalf("rand: %v", err)
		}
		var want [BlockSize]byte
		salsa.Core208(&want, &in)

		got := in
		Salsa208(&got)
		if got != want {
			t.Fatalf("Salsa208 mismatch for input %x\ngot:  %x\nwant: %x", in, got, want)
		}
	}
}

func TestSalsa208ZeroBlockIsFixedPoint(t *testing.T) {
	var b [BlockSize]byte
	Salsa208(&b)
	if b != ([BlockSize]byte{}) {
		t.Fatalf("expected zero block to stay zero, got %x", b)
	}
}

func TestBlockMixDeinterleave(t *testing.T) {
	for _, r := range []int{1, 2, 3, 8} {
		b := make([]byte, 128*r)
		if _, err := rand.Read(b); err != nil {
			t.Fatalf("rand: %v", err)
		}

		// Reference: chain the blocks without reordering.
		var chained [][BlockSize]byte
		var x [BlockSize]byte
		copy(x[:], b[(2*r-1)*BlockSize:])
		for i := 0; i < 2*r; i++ {
			for k := 0; k < BlockSize; k++ {
				x[k] ^= b[i*BlockSize+k]
			}
			Salsa208(&x)
			chained = append(chained, x)
		}

		y := make([]byte, 128*r)
		BlockMix(b, y, r)

		for i, blk := range chained {
			pos := i / 2
			if i%2 == 1 {
				pos = r + i/2
			}
			if !bytes.Equal(b[pos*BlockSize:(pos+1)*BlockSize], blk[:]) {
				t.Fatalf("r=%d: output block %d not at position %d", r, i, pos)
			}
		}
	}
}

func TestSMixDeterministic(t *testing.T) {
	r, n := 2, 64
	in := make([]byte, 128*r)
	for i := range in {
		in[i] = byte(i)
	}

	a := append([]byte(nil), in...)
	b := append([]byte(nil), in...)
	SMix(a, r, n, NewScratch(n, r))
	SMix(b, r, n, NewScratch(n, r))

	if !bytes.Equal(a, b) {
		t.Fatalf("SMix not deterministic")
	}
	if bytes.Equal(a, in) {
		t.Fatalf("SMix did not change the block")
	}
}

func TestSMixScratchReuse(t *testing.T) {
	r, n := 1, 16
	in := make([]byte, 128*r)
	if _, err := rand.Read(in); err != nil {
		t.Fatalf("rand: %v", err)
	}

	exact := append([]byte(nil), in...)
	SMix(exact, r, n, NewScratch(n, r))

	// A dirty, oversized scratch must give the same answer.
	big := NewScratch(4*n, 2*r)
	if _, err := rand.Read(big.V); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := rand.Read(big.XY); err != nil {
		t.Fatalf("rand: %v", err)
	}
	reused := append([]byte(nil), in...)
	SMix(reused, r, n, big)

	if !bytes.Equal(exact, reused) {
		t.Fatalf("SMix result depends on scratch contents")
	}
}

func TestSMixNEqualsOne(t *testing.T) {
	r := 1
	b := make([]byte, 128*r)
	b[0] = 1
	SMix(b, r, 1, NewScratch(1, r))
	if bytes.Equal(b, make([]byte, 128*r)) {
		t.Fatalf("unexpected zero output")
	}
}

func TestMixBlockValidatesSizes(t *testing.T) {
	s := NewScratch(16, 1)
	if err := MixBlock(make([]byte, 100), 1, 16, s); err != ErrBlockSize {
		t.Fatalf("expected ErrBlockSize, got %v", err)
	}
	if err := MixBlock(make([]byte, 128), 1, 32, s); err != ErrScratchSize {
		t.Fatalf("expected ErrScratchSize, got %v", err)
	}
	if err := MixBlock(make([]byte, 128), 1, 16, nil); err != ErrScratchSize {
		t.Fatalf("expected ErrScratchSize for nil scratch, got %v", err)
	}
	if err := MixBlock(make([]byte, 128), 1, 16, s); err != nil {
		t.Fatalf("MixBlock: %v", err)
	}
}

func TestScratchWipe(t *testing.T) {
	s := NewScratch(4, 1)
	s.V[0], s.XY[0] = 1, 1
	s.Wipe()
	if s.V[0] != 0 || s.XY[0] != 0 {
		t.Fatalf("Wipe left data behind")
	}
	if s.Size() != 4*128+256 {
		t.Fatalf("unexpected size %d", s.Size())
	}
}

func BenchmarkSalsa208(b *testing.B) {
	var x [BlockSize]byte
	b.SetBytes(BlockSize)
	for i := 0; i < b.N; i++ {
		Salsa208(&x)
	}
}

func BenchmarkSMix(b *testing.B) {
	r, n := 8, 1024
	block := make([]byte, 128*r)
	s := NewScratch(n, r)
	b.SetBytes(int64(len(block)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SMix(block, r, n, s)
	}
}
