package remote

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	q "github.com/quic-go/quic-go"
	log "github.com/sirupsen/logrus"

	"github.com/TheusHen/pscrypt/pscrypt/identity"
	"github.com/TheusHen/pscrypt/pscrypt/mix"
	"github.com/TheusHen/pscrypt/pscrypt/protocol"
	"github.com/TheusHen/pscrypt/pscrypt/session"
	"github.com/TheusHen/pscrypt/pscrypt/transport/quic"
)

const logModule = "remote"

// maxValue mirrors the scrypt buffer bound, 2^31-1.
const maxValue = 1<<31 - 1

var (
	ErrNotListening = errors.New("remote: server is not listening")
	ErrServerClosed = errors.New("remote: server closed")
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// MaxScratchBytes rejects requests with N*128*r above it. Zero means no
	// limit beyond the scrypt bounds.
	MaxScratchBytes int
	// MaxStreams bounds concurrent workers per client connection.
	MaxStreams int64
	// Allowed restricts clients; empty allows everyone.
	Allowed identity.Allowlist
	// Compression lz4-compresses result payloads that shrink.
	Compression bool
}

// Server serves mix requests over QUIC.
type Server struct {
	kp       identity.KeyPair
	opts     ServerOptions
	listener *quic.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	served atomic.Int64
}

func NewServer(kp identity.KeyPair, opts ServerOptions) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{kp: kp, opts: opts, ctx: ctx, cancel: cancel}
}

func (s *Server) Listen(addr string) error {
	topts := quic.Options{KeepAlive: 15 * time.Second}
	if s.opts.MaxStreams > 0 {
		// one more for the control stream
		topts.MaxStreams = s.opts.MaxStreams + 1
	}
	ln, err := quic.Listen(addr, topts)
	if err != nil {
		return errors.Wrapf(err, "remote: listen %s", addr)
	}
	s.listener = ln
	return nil
}

func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.AddrString()
}

func (s *Server) PeerID() identity.PeerID { return s.kp.PeerID() }

// Served returns the number of blocks mixed so far.
func (s *Server) Served() int64 { return s.served.Load() }

// Serve accepts connections until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	log.WithFields(log.Fields{"module": logModule, "addr": s.ListenAddr(), "peer_id": s.kp.PeerID()}).Info("mix server listening")
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "remote: accept")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) capabilities() map[string]string {
	caps := map[string]string{}
	if s.opts.MaxScratchBytes > 0 {
		caps[protocol.CapMaxScratch] = strconv.Itoa(s.opts.MaxScratchBytes)
	}
	if s.opts.MaxStreams > 0 {
		caps[protocol.CapMaxStreams] = strconv.FormatInt(s.opts.MaxStreams, 10)
	}
	return caps
}

func (s *Server) handleConn(ctx context.Context, conn q.Connection) {
	stop := context.AfterFunc(ctx, func() { _ = conn.CloseWithError(0, "server closing") })
	defer stop()

	sess, err := session.HandshakeServer(ctx, conn, s.kp, session.HandshakeOptions{
		Capabilities: s.capabilities(),
		Allowed:      s.opts.Allowed,
	})
	if err != nil {
		log.WithFields(log.Fields{"module": logModule, "remote_addr": conn.RemoteAddr(), "err": err}).Warn("handshake failed")
		_ = conn.CloseWithError(1, "handshake failed")
		return
	}
	defer sess.CloseWithError(0, "")

	peer := sess.RemotePeerID().Short()
	log.WithFields(log.Fields{"module": logModule, "peer": peer}).Info("client connected")

	var streams sync.WaitGroup
	defer streams.Wait()
	for {
		st, err := sess.AcceptStream(ctx)
		if err != nil {
			log.WithFields(log.Fields{"module": logModule, "peer": peer, "err": err}).Debug("client gone")
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			s.serveStream(peer, st)
		}()
	}
}

// serveStream answers requests on one worker stream until CLOSE or EOF.
func (s *Server) serveStream(peer string, st q.Stream) {
	defer st.Close()

	enc := protocol.NewEncoder(st, s.opts.Compression)
	var scratch *mix.Scratch
	defer func() {
		if scratch != nil {
			scratch.Wipe()
		}
	}()

	for {
		f, err := protocol.ReadFrame(st)
		if err != nil {
			return
		}
		switch f.Type {
		case protocol.MessageTypeClose:
			// completes the stream so the client regains its credit
			st.CancelRead(0)
			return
		case protocol.MessageTypeMixRequest:
		default:
			_ = enc.Encode(protocol.ErrorFrame("unexpected " + f.Type.String()))
			return
		}

		req, err := protocol.UnmarshalMixRequest(f.Payload)
		if err == nil {
			err = s.checkRequest(req)
		}
		if err != nil {
			log.WithFields(log.Fields{"module": logModule, "peer": peer, "N": req.N, "r": req.R, "err": err}).Warn("mix request rejected")
			if err := enc.Encode(protocol.ErrorFrame(err.Error())); err != nil {
				return
			}
			continue
		}

		n, r := int(req.N), int(req.R)
		if !scratch.Fits(n, r) {
			if scratch != nil {
				scratch.Wipe()
			}
			scratch = mix.NewScratch(n, r)
		}
		start := time.Now()
		if err := mix.MixBlock(req.Block, r, n, scratch); err != nil {
			_ = enc.Encode(protocol.ErrorFrame(err.Error()))
			continue
		}
		s.served.Add(1)
		res := protocol.MixResult{Index: req.Index, Block: req.Block}
		if err := enc.Encode(protocol.Frame{Type: protocol.MessageTypeMixResult, Payload: res.Marshal()}); err != nil {
			log.WithFields(log.Fields{"module": logModule, "peer": peer, "err": err}).Warn("write mix result")
			return
		}
		log.WithFields(log.Fields{"module": logModule, "peer": peer, "block": req.Index, "duration": time.Since(start)}).Debug("block mixed")
	}
}

func (s *Server) checkRequest(req protocol.MixRequest) error {
	n, r := uint64(req.N), uint64(req.R)
	if n == 0 || n&(n-1) != 0 {
		return errors.Errorf("N=%d must be > 0 and a power of 2", n)
	}
	if n > maxValue/128/r {
		return errors.Errorf("N=%d too large for r=%d", n, r)
	}
	if limit := s.opts.MaxScratchBytes; limit > 0 && n*128*r > uint64(limit) {
		return errors.Errorf("scratch of %d bytes exceeds server limit %d", n*128*r, limit)
	}
	return nil
}

// Close stops accepting, drops client connections and waits for handlers.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}
