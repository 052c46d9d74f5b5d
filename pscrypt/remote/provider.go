package remote

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	q "github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/TheusHen/pscrypt/pscrypt/identity"
	"github.com/TheusHen/pscrypt/pscrypt/protocol"
	"github.com/TheusHen/pscrypt/pscrypt/schedule"
	"github.com/TheusHen/pscrypt/pscrypt/session"
	"github.com/TheusHen/pscrypt/pscrypt/transport/quic"
)

var (
	ErrRemoteMix       = errors.New("remote: server rejected mix request")
	ErrUnexpectedPeer  = session.ErrUnexpectedPeer
	ErrScratchLimit    = errors.New("remote: scratch exceeds the server limit")
	ErrIndexMismatch   = errors.New("remote: result for a different block")
	ErrUnexpectedFrame = errors.New("remote: unexpected frame")
)

// DefaultOpenTimeout bounds how long NewWorker waits for stream credit.
const DefaultOpenTimeout = 5 * time.Second

// DialOptions configures the client side of a remote provider.
type DialOptions struct {
	// ExpectedPeer pins the server identity when set.
	ExpectedPeer *identity.PeerID
	// Compression lz4-compresses request payloads that shrink.
	Compression bool
	// OpenTimeout bounds the wait for a worker stream; zero uses
	// DefaultOpenTimeout.
	OpenTimeout time.Duration
	Transport   quic.Options
}

// Provider hands blocks to a remote Server. Each worker is one QUIC stream.
type Provider struct {
	sess        *session.Session
	maxScratch  int
	maxStreams  int
	compression bool
	openTimeout time.Duration
	closed      atomic.Bool
}

// Connect dials addr and authenticates the server.
func Connect(ctx context.Context, addr string, kp identity.KeyPair, opts DialOptions) (*Provider, error) {
	conn, err := quic.Dial(ctx, addr, opts.Transport)
	if err != nil {
		return nil, errors.Wrapf(err, "remote: dial %s", addr)
	}
	sess, err := session.HandshakeClient(ctx, conn, kp, session.HandshakeOptions{ExpectedPeer: opts.ExpectedPeer})
	if err != nil {
		_ = conn.CloseWithError(1, "handshake failed")
		return nil, errors.Wrap(err, "remote: handshake")
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	return &Provider{
		sess:        sess,
		maxScratch:  sess.RemoteMaxScratch(),
		maxStreams:  sess.RemoteMaxStreams(),
		compression: opts.Compression,
		openTimeout: openTimeout,
	}, nil
}

// Dial connects to a mix server and reports the outcome as a provider
// handle. Any failure yields an unavailable handle, on which the scheduler
// mixes sequentially.
func Dial(ctx context.Context, addr string, kp identity.KeyPair, opts DialOptions) schedule.Handle {
	p, err := Connect(ctx, addr, kp, opts)
	if err != nil {
		log.WithFields(log.Fields{"module": logModule, "addr": addr, "err": err}).Info("remote provider unavailable")
		return schedule.Unavailable(err)
	}
	log.WithFields(log.Fields{"module": logModule, "addr": addr, "peer": p.PeerID().Short()}).Info("remote provider connected")
	return schedule.Available(p)
}

func (p *Provider) PeerID() identity.PeerID { return p.sess.RemotePeerID() }

// MaxScratch is the server's advertised limit in bytes, 0 if none.
func (p *Provider) MaxScratch() int { return p.maxScratch }

// MaxWorkers is the number of worker streams the server accepts at once, 0
// if it does not say. It implements schedule.WorkerLimiter.
func (p *Provider) MaxWorkers() int { return p.maxStreams }

// NewWorker opens a stream on the server. Parameters the server has
// announced it cannot handle are refused before any stream is opened.
func (p *Provider) NewWorker(ctx context.Context, n, r int) (schedule.Worker, error) {
	if p.closed.Load() {
		return nil, schedule.ErrProviderClosed
	}
	if p.maxScratch > 0 && uint64(n)*128*uint64(r) > uint64(p.maxScratch) {
		return nil, errors.Wrapf(ErrScratchLimit, "N=%d r=%d needs %d bytes, server allows %d", n, r, uint64(n)*128*uint64(r), p.maxScratch)
	}
	openCtx, cancel := context.WithTimeout(ctx, p.openTimeout)
	defer cancel()
	st, err := p.sess.OpenStream(openCtx)
	if err != nil {
		return nil, errors.Wrap(err, "remote: open worker stream")
	}
	return &remoteWorker{st: st, enc: protocol.NewEncoder(st, p.compression), n: n, r: r}, nil
}

func (p *Provider) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.sess.Close()
}

type remoteWorker struct {
	st   q.Stream
	enc  *protocol.Encoder
	n, r int
}

func (w *remoteWorker) Mix(ctx context.Context, unit schedule.WorkUnit) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := w.st.SetDeadline(deadline); err != nil {
		return nil, err
	}
	// Cancellation unblocks pending stream I/O; the stream is unusable after.
	stop := context.AfterFunc(ctx, func() { _ = w.st.SetDeadline(time.Now()) })
	defer stop()

	req := protocol.MixRequest{N: uint32(w.n), R: uint32(w.r), Index: uint32(unit.Index), Block: unit.Block}
	if err := w.enc.Encode(protocol.Frame{Type: protocol.MessageTypeMixRequest, Payload: req.Marshal()}); err != nil {
		return nil, w.ioErr(ctx, err)
	}
	f, err := protocol.ReadFrame(w.st)
	if err != nil {
		return nil, w.ioErr(ctx, err)
	}

	switch f.Type {
	case protocol.MessageTypeMixResult:
		res, err := protocol.UnmarshalMixResult(f.Payload)
		if err != nil {
			return nil, err
		}
		if int(res.Index) != unit.Index {
			return nil, errors.Wrapf(ErrIndexMismatch, "sent %d, got %d", unit.Index, res.Index)
		}
		return res.Block, nil
	case protocol.MessageTypeError:
		return nil, errors.Wrap(ErrRemoteMix, string(f.Payload))
	default:
		return nil, errors.Wrap(ErrUnexpectedFrame, f.Type.String())
	}
}

func (w *remoteWorker) ioErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.Wrap(err, "remote: worker stream")
}

func (w *remoteWorker) Close() error {
	_ = protocol.WriteFrame(w.st, protocol.Frame{Type: protocol.MessageTypeClose})
	w.st.CancelRead(0)
	return w.st.Close()
}
