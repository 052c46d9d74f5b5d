package session

import (
	"context"

	q "github.com/quic-go/quic-go"

	"github.com/TheusHen/pscrypt/pscrypt/identity"
	"github.com/TheusHen/pscrypt/pscrypt/protocol"
)

// Session is an authenticated connection between a mix client and a mix
// server. QUIC encrypts the connection; the signed HELLO exchange binds it
// to the peers' Ed25519 identities.
type Session struct {
	conn         q.Connection
	control      q.Stream
	localPeerID  identity.PeerID
	remotePeerID identity.PeerID
	remoteHello  protocol.Hello
}

func (s *Session) LocalPeerID() identity.PeerID { return s.localPeerID }

func (s *Session) RemotePeerID() identity.PeerID { return s.remotePeerID }

func (s *Session) RemoteCapabilities() map[string]string {
	out := make(map[string]string, len(s.remoteHello.Capabilities))
	for k, v := range s.remoteHello.Capabilities {
		out[k] = v
	}
	return out
}

// RemoteMaxScratch is the scratch limit advertised by the peer, 0 if none.
func (s *Session) RemoteMaxScratch() int { return s.remoteHello.MaxScratch() }

// RemoteMaxStreams is the worker stream limit advertised by the peer, 0 if none.
func (s *Session) RemoteMaxStreams() int { return s.remoteHello.MaxStreams() }

// OpenStream opens a stream for mix requests, waiting for stream credit
// from the peer until ctx is done.
func (s *Session) OpenStream(ctx context.Context) (q.Stream, error) {
	return s.conn.OpenStreamSync(ctx)
}

// AcceptStream accepts the next stream opened by the peer.
func (s *Session) AcceptStream(ctx context.Context) (q.Stream, error) {
	return s.conn.AcceptStream(ctx)
}

// Close sends CLOSE on the control stream and closes the connection.
func (s *Session) Close() error {
	_ = protocol.WriteFrame(s.control, protocol.Frame{Type: protocol.MessageTypeClose})
	_ = s.control.Close()
	return s.conn.CloseWithError(0, "close")
}

func (s *Session) CloseWithError(code q.ApplicationErrorCode, msg string) error {
	return s.conn.CloseWithError(code, msg)
}
