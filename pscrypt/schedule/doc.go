// Package schedule runs SMix over the p independent blocks of an scrypt
// master buffer.
//
// Work is handed to a Provider, an abstraction over independent execution
// contexts (local goroutines, remote QUIC workers). Provider construction
// yields a Handle tagged ProviderAvailable or ProviderUnavailable; the
// Scheduler branches on that tag and falls back to a sequential loop on the
// calling goroutine when no provider can be used. Both paths produce
// byte-identical buffers.
//
// Each worker receives a private copy of one block, mixes it with its own
// scratch and returns the result, which is copied back into the block's own
// range of the master buffer. Ranges are disjoint, so no locking is needed.
// A worker failure after dispatch is fatal and reported as a
// *ProviderFailure.
package schedule
