package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TheusHen/pscrypt/pscrypt/mix"
)

const logModule = "schedule"

// DefaultMaxThreads is the worker count used when Options.MaxThreads is unset.
const DefaultMaxThreads = 2

// Options configures a Scheduler.
type Options struct {
	MaxThreads  int           // upper bound on concurrent workers (0 = DefaultMaxThreads)
	UnitTimeout time.Duration // deadline for a single block (0 = none)
	Stats       *Stats        // shared counters; allocated by New when nil
}

// Stats counts scheduler activity across runs.
type Stats struct {
	Dispatched atomic.Int64
	Completed  atomic.Int64
	Fallbacks  atomic.Int64
}

// Scheduler mixes the blocks of a master buffer with a provider or, when none
// is available, sequentially.
type Scheduler struct {
	handle Handle
	opts   Options
	stats  *Stats
}

// New creates a scheduler over the given provider handle. The scheduler does
// not own the handle; closing it is up to the caller.
func New(handle Handle, opts Options) *Scheduler {
	if opts.Stats == nil {
		opts.Stats = &Stats{}
	}
	return &Scheduler{handle: handle, opts: opts, stats: opts.Stats}
}

// Stats returns the scheduler's counters.
func (s *Scheduler) Stats() *Stats { return s.stats }

// Workers returns how many workers a run over p blocks would use.
func (s *Scheduler) Workers(p int) int {
	w := s.opts.MaxThreads
	if w <= 0 {
		w = DefaultMaxThreads
	}
	if l, ok := s.handle.Provider.(WorkerLimiter); ok {
		if limit := l.MaxWorkers(); limit > 0 && w > limit {
			w = limit
		}
	}
	if w > p {
		w = p
	}
	return w
}

// Run mixes each of the p blocks of b in place. It returns only after every
// block has been mixed and copied back, or with an error; in the error case
// the contents of b are unspecified.
func (s *Scheduler) Run(ctx context.Context, b []byte, n, r, p int) error {
	if len(b) != p*128*r {
		return ErrBufferSize
	}
	if err := ctx.Err(); err != nil {
		return &ProviderFailure{Index: -1, Err: err}
	}

	if s.handle.State != ProviderAvailable {
		log.WithFields(log.Fields{"module": logModule, "reason": s.handle.Reason}).Info("provider unavailable, mixing sequentially")
		s.stats.Fallbacks.Add(1)
		return RunSequential(ctx, b, n, r, p)
	}

	workers, err := s.startWorkers(ctx, s.Workers(p), n, r)
	if err != nil {
		log.WithFields(log.Fields{"module": logModule, "err": err}).Info("worker creation failed, mixing sequentially")
		s.stats.Fallbacks.Add(1)
		return RunSequential(ctx, b, n, r, p)
	}
	defer closeWorkers(workers)

	return s.runParallel(ctx, b, r, p, workers)
}

func (s *Scheduler) startWorkers(ctx context.Context, w, n, r int) ([]Worker, error) {
	workers := make([]Worker, 0, w)
	for i := 0; i < w; i++ {
		wk, err := s.handle.Provider.NewWorker(ctx, n, r)
		if err != nil {
			closeWorkers(workers)
			return nil, err
		}
		workers = append(workers, wk)
	}
	return workers, nil
}

func closeWorkers(workers []Worker) {
	for _, wk := range workers {
		if err := wk.Close(); err != nil {
			log.WithFields(log.Fields{"module": logModule, "err": err}).Warn("close worker")
		}
	}
}

func (s *Scheduler) runParallel(ctx context.Context, b []byte, r, p int, workers []Worker) error {
	blockLen := 128 * r

	// Every index is queued up front; a worker takes the next one as soon as
	// it has returned its previous block.
	indices := make(chan int, p)
	for i := 0; i < p; i++ {
		indices <- i
	}
	close(indices)

	g, gctx := errgroup.WithContext(ctx)
	for id, wk := range workers {
		id, wk := id, wk
		g.Go(func() error {
			for i := range indices {
				if err := gctx.Err(); err != nil {
					return &ProviderFailure{Index: i, Err: err}
				}
				region := b[i*blockLen : (i+1)*blockLen]
				unit := WorkUnit{Index: i, Block: append([]byte(nil), region...)}

				s.stats.Dispatched.Add(1)
				start := time.Now()
				mixed, err := s.mixUnit(gctx, wk, unit)
				if err != nil {
					log.WithFields(log.Fields{"module": logModule, "worker": id, "block": i, "err": err}).Error("mix unit failed")
					return &ProviderFailure{Index: i, Err: err}
				}
				if len(mixed) != blockLen {
					return &ProviderFailure{Index: i, Err: ErrResultSize}
				}
				copy(region, mixed)
				s.stats.Completed.Add(1)

				log.WithFields(log.Fields{"module": logModule, "worker": id, "block": i, "duration": time.Since(start)}).Debug("block mixed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) mixUnit(ctx context.Context, wk Worker, unit WorkUnit) ([]byte, error) {
	if s.opts.UnitTimeout <= 0 {
		return wk.Mix(ctx, unit)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.UnitTimeout)
	defer cancel()
	return wk.Mix(ctx, unit)
}

// RunSequential mixes the p blocks of b one after another on the calling
// goroutine, reusing a single scratch. The context is checked between blocks.
func RunSequential(ctx context.Context, b []byte, n, r, p int) error {
	blockLen := 128 * r
	if len(b) != p*blockLen {
		return ErrBufferSize
	}

	scratch := mix.NewScratch(n, r)
	defer scratch.Wipe()

	for i := 0; i < p; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "schedule: sequential mix stopped before block %d", i)
		}
		mix.SMix(b[i*blockLen:(i+1)*blockLen], r, n, scratch)
	}
	return nil
}
