package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	q "github.com/quic-go/quic-go"

	"github.com/TheusHen/pscrypt/pscrypt/identity"
	"github.com/TheusHen/pscrypt/pscrypt/protocol"
)

// DefaultMaxSkew bounds the clock difference accepted in a HELLO.
const DefaultMaxSkew = 5 * time.Minute

var (
	ErrHandshakeExpectedHello = errors.New("session: handshake expected HELLO")
	ErrUnexpectedPeer         = errors.New("session: peer identity does not match the expected PeerID")
	ErrPeerNotAllowed         = errors.New("session: peer is not in the allowlist")
)

type HandshakeOptions struct {
	Capabilities map[string]string
	// ExpectedPeer pins the remote identity when set.
	ExpectedPeer *identity.PeerID
	// Allowed restricts remote identities; empty allows all.
	Allowed identity.Allowlist
	// MaxSkew bounds HELLO timestamp drift; zero uses DefaultMaxSkew.
	MaxSkew time.Duration
}

func (o HandshakeOptions) check(h protocol.Hello) (identity.PeerID, error) {
	skew := o.MaxSkew
	if skew == 0 {
		skew = DefaultMaxSkew
	}
	if err := h.VerifyAt(time.Now(), skew); err != nil {
		return identity.PeerID{}, err
	}
	id, err := identity.ParsePeerIDHex(h.PeerID)
	if err != nil {
		return identity.PeerID{}, err
	}
	if o.ExpectedPeer != nil && *o.ExpectedPeer != id {
		return identity.PeerID{}, ErrUnexpectedPeer
	}
	if !o.Allowed.Allows(id) {
		return identity.PeerID{}, ErrPeerNotAllowed
	}
	return id, nil
}

func writeHello(control q.Stream, kp identity.KeyPair, caps map[string]string) error {
	hello, err := protocol.NewHello(kp, caps)
	if err != nil {
		return err
	}
	if err := hello.Sign(kp); err != nil {
		return err
	}
	payload, err := protocol.EncodeHello(hello)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(control, protocol.Frame{Type: protocol.MessageTypeHello, Payload: payload})
}

func readHello(control q.Stream) (protocol.Hello, error) {
	frame, err := protocol.ReadFrame(control)
	if err != nil {
		return protocol.Hello{}, err
	}
	if frame.Type != protocol.MessageTypeHello {
		return protocol.Hello{}, ErrHandshakeExpectedHello
	}
	return protocol.DecodeHello(frame.Payload)
}

// HandshakeClient opens the control stream and exchanges HELLOs, client first.
func HandshakeClient(ctx context.Context, conn q.Connection, kp identity.KeyPair, opts HandshakeOptions) (*Session, error) {
	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "session: open control stream")
	}
	if err := writeHello(control, kp, opts.Capabilities); err != nil {
		return nil, err
	}
	remoteHello, err := readHello(control)
	if err != nil {
		return nil, err
	}
	remoteID, err := opts.check(remoteHello)
	if err != nil {
		return nil, err
	}

	return &Session{
		conn:         conn,
		control:      control,
		localPeerID:  kp.PeerID(),
		remotePeerID: remoteID,
		remoteHello:  remoteHello,
	}, nil
}

// HandshakeServer accepts the control stream opened by the client and
// answers its HELLO. A rejected client gets an ERROR frame.
func HandshakeServer(ctx context.Context, conn q.Connection, kp identity.KeyPair, opts HandshakeOptions) (*Session, error) {
	control, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "session: accept control stream")
	}
	remoteHello, err := readHello(control)
	if err != nil {
		return nil, err
	}
	remoteID, err := opts.check(remoteHello)
	if err != nil {
		_ = protocol.WriteFrame(control, protocol.ErrorFrame(err.Error()))
		return nil, err
	}
	if err := writeHello(control, kp, opts.Capabilities); err != nil {
		return nil, err
	}

	return &Session{
		conn:         conn,
		control:      control,
		localPeerID:  kp.PeerID(),
		remotePeerID: remoteID,
		remoteHello:  remoteHello,
	}, nil
}
