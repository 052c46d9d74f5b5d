package pscrypt

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/TheusHen/pscrypt/pscrypt/identity"
	"github.com/TheusHen/pscrypt/pscrypt/remote"
	"github.com/TheusHen/pscrypt/pscrypt/schedule"
)

const logModule = "pscrypt"

var (
	ErrDeriverClosed = errors.New("pscrypt: deriver is closed")
	ErrNoRemote      = errors.New("pscrypt: no remote address configured")
)

// Result is delivered exactly once on the channel returned by DeriveKey.
type Result struct {
	Key []byte
	Err error
}

// Deriver owns a parallel task provider and runs derivations on it.
// It is safe for concurrent use.
type Deriver struct {
	cfg    Config
	handle schedule.Handle
	stats  *schedule.Stats

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDeriver probes the local goroutine provider, unless parallelism is
// disabled in cfg.
func NewDeriver(cfg Config) *Deriver {
	if cfg.DisableParallel {
		return NewDeriverWithHandle(cfg, schedule.Unavailable(errors.New("parallelism disabled by configuration")))
	}
	return NewDeriverWithHandle(cfg, schedule.Available(schedule.NewLocalProvider()))
}

// NewDeriverWithHandle uses an already constructed provider handle. The
// Deriver takes ownership of the handle.
func NewDeriverWithHandle(cfg Config, handle schedule.Handle) *Deriver {
	if handle.State != schedule.ProviderAvailable {
		log.WithFields(log.Fields{"module": logModule, "reason": handle.Reason}).Info("parallel provider unavailable")
	}
	return &Deriver{cfg: cfg, handle: handle, stats: &schedule.Stats{}}
}

// NewRemoteDeriver dials the mix server named in cfg.Remote. A failed dial
// leaves the Deriver on the sequential path.
func NewRemoteDeriver(ctx context.Context, cfg Config, kp identity.KeyPair) (*Deriver, error) {
	if cfg.Remote.Addr == "" {
		return nil, ErrNoRemote
	}
	opts := remote.DialOptions{}
	if cfg.Remote.PeerID != "" {
		id, err := identity.ParsePeerIDHex(cfg.Remote.PeerID)
		if err != nil {
			return nil, errors.Wrap(err, "pscrypt: remote peer id")
		}
		opts.ExpectedPeer = &id
	}
	return NewDeriverWithHandle(cfg, remote.Dial(ctx, cfg.Remote.Addr, kp, opts)), nil
}

// Handle returns the provider handle the Deriver was built with.
func (d *Deriver) Handle() schedule.Handle { return d.handle }

// Stats returns counters shared by every derivation of this Deriver.
func (d *Deriver) Stats() *schedule.Stats { return d.stats }

// DeriveKey validates params and starts a derivation. Invalid parameters are
// reported immediately and no channel is returned. Otherwise the result is
// delivered once on the returned channel, which is then closed.
func (d *Deriver) DeriveKey(ctx context.Context, password, salt []byte, params Params) (<-chan Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDeriverClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	pw := append([]byte(nil), password...)
	s := append([]byte(nil), salt...)

	out := make(chan Result, 1)
	go func() {
		defer d.wg.Done()
		defer close(out)
		key, err := d.derive(ctx, pw, s, params)
		clear(pw)
		out <- Result{Key: key, Err: err}
	}()
	return out, nil
}

// Derive runs DeriveKey and waits for its result.
func (d *Deriver) Derive(ctx context.Context, password, salt []byte, params Params) ([]byte, error) {
	ch, err := d.DeriveKey(ctx, password, salt, params)
	if err != nil {
		return nil, err
	}
	res := <-ch
	return res.Key, res.Err
}

func (d *Deriver) derive(ctx context.Context, password, salt []byte, params Params) ([]byte, error) {
	start := time.Now()

	b := Stretch(password, salt, params.P*params.BlockSize())
	defer clear(b)

	sched := schedule.New(d.handle, d.cfg.scheduleOptions(params.MaxThreads, d.stats))
	if err := sched.Run(ctx, b, params.N, params.R, params.P); err != nil {
		return nil, errors.Wrap(err, "pscrypt: mix blocks")
	}
	key := Stretch(password, b, params.KeyLen)

	log.WithFields(log.Fields{
		"module":   logModule,
		"N":        params.N,
		"r":        params.R,
		"p":        params.P,
		"workers":  sched.Workers(params.P),
		"scratch":  params.ScratchSize(),
		"duration": time.Since(start),
	}).Debug("key derived")
	return key, nil
}

// Close waits for in-flight derivations and releases the provider. It is
// safe to call more than once.
func (d *Deriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	return d.handle.Close()
}
