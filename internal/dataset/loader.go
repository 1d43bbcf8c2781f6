package dataset

import (
	"math/rand"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type LoaderOptions struct {
	BatchSize int
	Workers   int
	Prefetch  int
	Shuffle   bool
	Seed      int64
}

// Loader produces batches of consecutive samples of one split. Every call to
// Each is a new pass over the split.
type Loader struct {
	ds     Accessor
	opts   LoaderOptions
	passes atomic.Int64
}

func NewLoader(ds Accessor, opts LoaderOptions) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}
	return &Loader{ds: ds, opts: opts}
}

// Len is the number of samples in the split.
func (l *Loader) Len() int {
	return l.ds.Len()
}

func (l *Loader) NumBatches() int {
	return (l.ds.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

type batchResult struct {
	batch Batch
	err   error
}

// Each calls fn for every batch of one pass. Batches are decoded ahead of
// fn by a producer goroutine; the first error from decoding or from fn ends
// the pass and is returned.
func (l *Loader) Each(fn func(Batch) error) error {
	pass := l.passes.Add(1) - 1
	order := l.batchOrder(pass)

	batches := make(chan batchResult, l.opts.Prefetch)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(batches)
		for _, b := range order {
			batch, err := l.load(b)
			select {
			case batches <- batchResult{batch: batch, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for res := range batches {
		if res.err != nil {
			return res.err
		}
		if err := fn(res.batch); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{"pass": pass, "batches": len(order), "samples": l.ds.Len()}).
		Debug("Loader pass complete")

	return nil
}

func (l *Loader) batchOrder(pass int64) []int {
	order := make([]int, l.NumBatches())
	for i := range order {
		order[i] = i
	}
	if l.opts.Shuffle {
		r := rand.New(rand.NewSource(l.opts.Seed + pass))
		r.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order
}

// load decodes batch b with up to Workers concurrent reads. Each worker
// writes its own slot, so the order inside the batch is the split order.
func (l *Loader) load(b int) (Batch, error) {
	start := b * l.opts.BatchSize
	end := start + l.opts.BatchSize
	if end > l.ds.Len() {
		end = l.ds.Len()
	}

	batch := Batch{
		Inputs: make([]Tensor, end-start),
		Labels: make([]int, end-start),
		Offset: start,
	}

	var g errgroup.Group
	g.SetLimit(l.opts.Workers)
	for i := start; i < end; i++ {
		i := i
		g.Go(func() error {
			sample, err := l.ds.Get(i)
			if err != nil {
				return err
			}
			batch.Inputs[i-start] = sample.Tensor
			batch.Labels[i-start] = sample.Label
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	return batch, nil
}
