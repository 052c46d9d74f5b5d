// Package pscrypt derives keys from passwords with the scrypt KDF (RFC 7914),
// running the p independent memory-hard blocks on concurrent workers.
//
// The entry point is a Deriver, a caller-owned context that holds a parallel
// task provider for its whole lifetime. DeriveKey validates parameters
// synchronously and delivers the derived key on a channel once every block
// has been mixed, whether the blocks ran on local goroutines, on remote
// workers (see package remote) or sequentially because no provider was
// available. Key is a blocking helper that always mixes sequentially.
package pscrypt
