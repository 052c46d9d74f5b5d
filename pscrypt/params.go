package pscrypt

import (
	"fmt"

	"github.com/pkg/errors"
)

// MaxValue bounds every buffer size so that N*128*r and p*128*r stay
// addressable with a signed 32-bit length.
const MaxValue = 1<<31 - 1

var ErrInvalidParams = errors.New("pscrypt: invalid parameters")

// ParameterError describes a rejected cost parameter.
// errors.Is(err, ErrInvalidParams) holds for every ParameterError.
type ParameterError struct {
	Param  string
	Value  int
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("pscrypt: invalid %s=%d: %s", e.Param, e.Value, e.Reason)
}

func (e *ParameterError) Is(target error) bool { return target == ErrInvalidParams }

// Params holds the scrypt cost parameters of one derivation.
type Params struct {
	N      int // CPU/memory cost, a power of two
	R      int // block size multiplier
	P      int // parallelization factor
	KeyLen int // derived key length in bytes

	// MaxThreads caps the number of concurrent workers for this derivation.
	// Zero uses the Deriver's configured value.
	MaxThreads int
}

// DefaultParams are the interactive-login parameters from the scrypt paper.
var DefaultParams = Params{N: 16384, R: 8, P: 1, KeyLen: 32}

// Validate checks the parameters without allocating anything.
func (p Params) Validate() error {
	if p.N <= 0 || p.N&(p.N-1) != 0 {
		return &ParameterError{Param: "N", Value: p.N, Reason: "must be > 0 and a power of 2"}
	}
	if p.R < 1 {
		return &ParameterError{Param: "r", Value: p.R, Reason: "must be >= 1"}
	}
	if p.P < 1 {
		return &ParameterError{Param: "p", Value: p.P, Reason: "must be >= 1"}
	}
	if p.N > MaxValue/128/p.R {
		return &ParameterError{Param: "N", Value: p.N, Reason: "too large for r"}
	}
	if p.R > MaxValue/128/p.P {
		return &ParameterError{Param: "r", Value: p.R, Reason: "too large for p"}
	}
	if p.KeyLen < 1 {
		return &ParameterError{Param: "keyLen", Value: p.KeyLen, Reason: "must be >= 1"}
	}
	return nil
}

// BlockSize returns the size in bytes of one of the p blocks.
func (p Params) BlockSize() int { return 128 * p.R }

// ScratchSize returns the memory one worker needs to mix a block.
func (p Params) ScratchSize() int { return 128*p.R*p.N + 256*p.R }
