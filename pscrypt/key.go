package pscrypt

import (
	"context"

	"github.com/TheusHen/pscrypt/pscrypt/schedule"
)

// Key derives a keyLen-byte key from password and salt, mixing every block
// sequentially on the calling goroutine.
//
// For example, a 32-byte key for AES-256:
//
//	dk, err := pscrypt.Key([]byte("some password"), salt, 16384, 8, 1, 32)
func Key(password, salt []byte, N, r, p, keyLen int) ([]byte, error) {
	params := Params{N: N, R: r, P: p, KeyLen: keyLen}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	b := Stretch(password, salt, p*128*r)
	defer clear(b)

	if err := schedule.RunSequential(context.Background(), b, N, r, p); err != nil {
		return nil, err
	}
	return Stretch(password, b, keyLen), nil
}
