// Package mix implements the memory-hard mixing engine of scrypt (RFC 7914).
//
// Layers, leaves first:
//   - Salsa208: the Salsa20/8 core permutation over one 64-byte block
//   - BlockMix: 2r Salsa20/8 applications followed by the even/odd de-interleave
//   - SMix (ROMix): fill a table of N BlockMix states, then probe it pseudo-randomly
//
// All functions work in place on caller-provided buffers. A Scratch holds the
// table and working buffer for one SMix caller at a time and must never be
// shared between goroutines running SMix concurrently.
package mix
