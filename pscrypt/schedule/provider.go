package schedule

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrProviderFailure = errors.New("schedule: provider failure")
	ErrProviderClosed  = errors.New("schedule: provider closed")
	ErrNoProvider      = errors.New("schedule: no provider")
	ErrResultSize      = errors.New("schedule: worker returned a block of the wrong size")
	ErrBufferSize      = errors.New("schedule: master buffer length must be p*128*r")
)

// WorkUnit pairs a block index with a private copy of that block.
type WorkUnit struct {
	Index int
	Block []byte
}

// Worker mixes blocks on one execution context. A Worker is used by a single
// goroutine at a time; it may keep scratch memory between calls.
type Worker interface {
	// Mix runs SMix over unit.Block and returns the mixed 128*r bytes.
	Mix(ctx context.Context, unit WorkUnit) ([]byte, error)
	Close() error
}

// Provider creates workers bound to a fixed (N, r).
type Provider interface {
	NewWorker(ctx context.Context, n, r int) (Worker, error)
	Close() error
}

// WorkerLimiter is implemented by providers that can only run a bounded
// number of workers at once. The scheduler never asks for more.
type WorkerLimiter interface {
	// MaxWorkers returns the bound, or 0 when there is none.
	MaxWorkers() int
}

// Availability tags the outcome of provider construction.
type Availability uint8

const (
	ProviderUnavailable Availability = iota
	ProviderAvailable
)

func (a Availability) String() string {
	switch a {
	case ProviderAvailable:
		return "available"
	case ProviderUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Handle is the result of constructing a provider. Reason is set when State
// is ProviderUnavailable.
type Handle struct {
	State    Availability
	Provider Provider
	Reason   error
}

// Available wraps a ready provider. A nil provider yields an unavailable handle.
func Available(p Provider) Handle {
	if p == nil {
		return Unavailable(ErrNoProvider)
	}
	return Handle{State: ProviderAvailable, Provider: p}
}

// Unavailable records why no provider could be constructed.
func Unavailable(reason error) Handle {
	if reason == nil {
		reason = ErrNoProvider
	}
	return Handle{State: ProviderUnavailable, Reason: reason}
}

// Close releases the provider, if any.
func (h Handle) Close() error {
	if h.Provider == nil {
		return nil
	}
	return h.Provider.Close()
}

// ProviderFailure reports a unit that could not be mixed after dispatch.
// Index is -1 when the failure is not tied to a specific block.
type ProviderFailure struct {
	Index int
	Err   error
}

func (e *ProviderFailure) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("schedule: provider failure: %v", e.Err)
	}
	return fmt.Sprintf("schedule: provider failure on block %d: %v", e.Index, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProviderFailure) hold for every ProviderFailure.
func (e *ProviderFailure) Is(target error) bool { return target == ErrProviderFailure }
