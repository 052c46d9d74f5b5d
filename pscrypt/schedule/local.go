package schedule

import (
	"context"
	"sync/atomic"

	"github.com/TheusHen/pscrypt/pscrypt/mix"
)

// LocalProvider runs workers on goroutines of the current process.
type LocalProvider struct {
	closed  atomic.Bool
	created atomic.Int32
}

// NewLocalProvider creates a goroutine-backed provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// NewWorker returns a worker that allocates its scratch on first use.
func (p *LocalProvider) NewWorker(ctx context.Context, n, r int) (Worker, error) {
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.created.Add(1)
	return &localWorker{n: n, r: r}, nil
}

// Created returns the total number of workers handed out.
func (p *LocalProvider) Created() int {
	return int(p.created.Load())
}

// Close marks the provider closed. Workers already handed out keep working.
func (p *LocalProvider) Close() error {
	p.closed.Store(true)
	return nil
}

type localWorker struct {
	n, r    int
	scratch *mix.Scratch
}

func (w *localWorker) Mix(ctx context.Context, unit WorkUnit) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.scratch == nil {
		w.scratch = mix.NewScratch(w.n, w.r)
	}
	if err := mix.MixBlock(unit.Block, w.r, w.n, w.scratch); err != nil {
		return nil, err
	}
	return unit.Block, nil
}

func (w *localWorker) Close() error {
	if w.scratch != nil {
		w.scratch.Wipe()
		w.scratch = nil
	}
	return nil
}
