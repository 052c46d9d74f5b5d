// Package remote runs scrypt block mixing on other machines.
//
// A Server accepts QUIC connections, authenticates clients with the signed
// HELLO handshake and then serves MIX_REQUEST frames: every stream a client
// opens is one worker, and requests on a stream are answered in order with
// MIX_RESULT or ERROR. A Provider is the client side; it implements
// schedule.Provider so a Deriver can hand its blocks to a server.
package remote
